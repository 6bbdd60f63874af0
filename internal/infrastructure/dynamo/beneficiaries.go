package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-dead-mans-switch/internal/domain"
)

// BeneficiaryRepo stores the beneficiaries of each switch.
// PK: switch_id, SK: beneficiary_id.
type BeneficiaryRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewBeneficiaryRepo(client *dynamodb.Client, tableName string) *BeneficiaryRepo {
	return &BeneficiaryRepo{client: client, tableName: tableName}
}

func (r *BeneficiaryRepo) Put(ctx context.Context, b *domain.Beneficiary) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal beneficiary: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *BeneficiaryRepo) Get(ctx context.Context, switchID, beneficiaryID string) (*domain.Beneficiary, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldSwitchID, switchID, fieldBeneficiaryID, beneficiaryID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("beneficiary not found: %w", domain.ErrNotFound)
	}
	var b domain.Beneficiary
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BeneficiaryRepo) ListBySwitch(ctx context.Context, switchID string) ([]domain.Beneficiary, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("switch_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": strVal(switchID),
		},
		ConsistentRead: aws.Bool(true),
	})
	var out []domain.Beneficiary
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Beneficiary
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// MarkNotified stamps notified_at once. A beneficiary that was already
// notified gets domain.ErrConflict.
func (r *BeneficiaryRepo) MarkNotified(ctx context.Context, switchID, beneficiaryID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldNotifiedAt:        at,
		fieldLastDeliveryError: "",
	})
	if err != nil {
		return err
	}
	ue.Names["#n"] = fieldNotifiedAt
	ue.Values[":null"] = strVal("NULL")
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldSwitchID, switchID, fieldBeneficiaryID, beneficiaryID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_not_exists(#n) OR attribute_type(#n, :null)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("beneficiary %s already notified: %w", beneficiaryID, domain.ErrConflict)
	}
	return err
}

// RecordDeliveryError keeps the last failure so operators can see why a
// beneficiary is still pending.
func (r *BeneficiaryRepo) RecordDeliveryError(ctx context.Context, switchID, beneficiaryID, msg string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldLastDeliveryError: msg})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldSwitchID, switchID, fieldBeneficiaryID, beneficiaryID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// DeleteBySwitch removes every beneficiary of a switch.
func (r *BeneficiaryRepo) DeleteBySwitch(ctx context.Context, switchID string) error {
	list, err := r.ListBySwitch(ctx, switchID)
	if err != nil {
		return err
	}
	for _, b := range list {
		if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key:       compositeKey(fieldSwitchID, switchID, fieldBeneficiaryID, b.BeneficiaryID),
		}); err != nil {
			return err
		}
	}
	return nil
}
