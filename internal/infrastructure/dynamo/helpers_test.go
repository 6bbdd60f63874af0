package dynamo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"status": "revoked"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "status"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"status":        "approved",
		"current_stage": "completed",
		"updated_at":    "2026-01-01T00:00:00Z",
	}
	// Call twice to verify determinism.
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)

	// Keys must be sorted: current_stage < status < updated_at
	assert.Equal(t, "current_stage", ue1.Names["#f0"])
	assert.Equal(t, "status", ue1.Names["#f1"])
	assert.Equal(t, "updated_at", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"recovery_triggered": true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestCanceledByCondition(t *testing.T) {
	code := "ConditionalCheckFailed"
	none := "None"
	err := fmt.Errorf("wrap: %w", &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &none}, {Code: &code}},
	})
	failed, ok := canceledByCondition(err)
	assert.True(t, ok)
	assert.Equal(t, []int{1}, failed)

	_, ok = canceledByCondition(errors.New("throttled"))
	assert.False(t, ok)

	_, ok = canceledByCondition(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &none}},
	})
	assert.False(t, ok)
}

func TestIsConditionFailed(t *testing.T) {
	assert.True(t, isConditionFailed(fmt.Errorf("put: %w", &types.ConditionalCheckFailedException{})))
	assert.False(t, isConditionFailed(errors.New("boom")))
	assert.False(t, isConditionFailed(nil))
}

func TestNumVal(t *testing.T) {
	av, ok := numVal(3).(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "3", av.Value)
}

func TestConditionFailedItem(t *testing.T) {
	item := map[string]types.AttributeValue{"recovery_triggered": &types.AttributeValueMemberBOOL{Value: true}}
	got, ok := conditionFailedItem(fmt.Errorf("update: %w", &types.ConditionalCheckFailedException{Item: item}))
	require.True(t, ok)
	assert.Equal(t, item, got)

	_, ok = conditionFailedItem(errors.New("throttled"))
	assert.False(t, ok)
}

func TestCancellationItem(t *testing.T) {
	code := "ConditionalCheckFailed"
	item := map[string]types.AttributeValue{"status": strVal("revoked")}
	err := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code, Item: item}},
	}
	assert.Equal(t, item, cancellationItem(err, 0))
	assert.Nil(t, cancellationItem(err, 1))
	assert.Nil(t, cancellationItem(errors.New("boom"), 0))
}

func TestLinkRejection(t *testing.T) {
	active, err := attributevalue.MarshalMap(&domain.Link{LinkID: "l-1", Status: domain.LinkStatusActive, ActiveClaimID: "c-0"})
	require.NoError(t, err)
	revoked, err := attributevalue.MarshalMap(&domain.Link{LinkID: "l-1", Status: domain.LinkStatusRevoked})
	require.NoError(t, err)

	assert.True(t, errors.Is(linkRejection("l-1", active), domain.ErrDuplicateActiveClaim))
	assert.True(t, errors.Is(linkRejection("l-1", revoked), domain.ErrClaimNotAuthorized))
	assert.True(t, errors.Is(linkRejection("l-1", nil), domain.ErrClaimNotAuthorized))
}

func TestTriggerRejection(t *testing.T) {
	triggered := map[string]types.AttributeValue{fieldRecoveryTriggered: &types.AttributeValueMemberBOOL{Value: true}}
	fresh := map[string]types.AttributeValue{fieldRecoveryTriggered: &types.AttributeValueMemberBOOL{Value: false}}

	assert.True(t, errors.Is(triggerRejection("sw-1", triggered), domain.ErrAlreadyTriggered))
	assert.True(t, errors.Is(triggerRejection("sw-1", fresh), domain.ErrCheckedIn))
	assert.True(t, errors.Is(triggerRejection("sw-1", nil), domain.ErrNotFound))
}
