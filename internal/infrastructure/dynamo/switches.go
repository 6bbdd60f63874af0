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

// SwitchRepo provides typed DynamoDB operations for the switches table.
// PK: switch_id. GSI owner_id-index.
type SwitchRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSwitchRepo(client *dynamodb.Client, tableName string) *SwitchRepo {
	return &SwitchRepo{client: client, tableName: tableName}
}

func (r *SwitchRepo) Put(ctx context.Context, s *domain.Switch) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal switch: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + fieldSwitchID + ")"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("switch %s exists: %w", s.SwitchID, domain.ErrConflict)
	}
	return err
}

func (r *SwitchRepo) Get(ctx context.Context, switchID string) (*domain.Switch, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSwitchID, switchID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("switch not found: %w", domain.ErrNotFound)
	}
	var s domain.Switch
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActive returns every switch whose recovery has not been triggered.
func (r *SwitchRepo) ListActive(ctx context.Context) ([]domain.Switch, error) {
	return r.scanByTriggered(ctx, false)
}

// ListTriggered returns every switch whose recovery has been triggered.
func (r *SwitchRepo) ListTriggered(ctx context.Context) ([]domain.Switch, error) {
	return r.scanByTriggered(ctx, true)
}

func (r *SwitchRepo) scanByTriggered(ctx context.Context, triggered bool) ([]domain.Switch, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#t = :t"),
		ExpressionAttributeNames: map[string]string{"#t": fieldRecoveryTriggered},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: triggered},
		},
	})
	var switches []domain.Switch
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Switch
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		switches = append(switches, batch...)
	}
	return switches, nil
}

// ListByOwner queries the owner_id GSI.
func (r *SwitchRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Switch, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("owner_id-index"),
		KeyConditionExpression: aws.String("owner_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": strVal(ownerID),
		},
	})
	var switches []domain.Switch
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Switch
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		switches = append(switches, batch...)
	}
	return switches, nil
}

// MarkTriggered flips recovery_triggered from false to true in one conditional
// write, provided last_check_in still equals seen. A concurrent or repeated
// trigger gets domain.ErrAlreadyTriggered and a check-in made after seen was
// read gets domain.ErrCheckedIn.
func (r *SwitchRepo) MarkTriggered(ctx context.Context, switchID string, seen, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldRecoveryTriggered: true,
		fieldTriggeredAt:       at,
		fieldUpdatedAt:         at,
	})
	if err != nil {
		return err
	}
	seenVal, err := attributevalue.Marshal(seen)
	if err != nil {
		return fmt.Errorf("marshal last check-in: %w", err)
	}
	ue.Names["#rt"] = fieldRecoveryTriggered
	ue.Names["#lc"] = fieldLastCheckIn
	ue.Values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	ue.Values[":seen"] = seenVal
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey(fieldSwitchID, switchID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String("#rt = :false AND #lc = :seen"),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if item, ok := conditionFailedItem(err); ok {
		return triggerRejection(switchID, item)
	}
	return err
}

// triggerRejection explains a failed MarkTriggered from the stored item.
func triggerRejection(switchID string, item map[string]types.AttributeValue) error {
	if item == nil {
		return fmt.Errorf("switch %s: %w", switchID, domain.ErrNotFound)
	}
	if v, ok := item[fieldRecoveryTriggered].(*types.AttributeValueMemberBOOL); ok && v.Value {
		return fmt.Errorf("switch %s: %w", switchID, domain.ErrAlreadyTriggered)
	}
	return fmt.Errorf("switch %s: %w", switchID, domain.ErrCheckedIn)
}

// CheckIn records proof of life. It is refused once recovery has triggered.
func (r *SwitchRepo) CheckIn(ctx context.Context, switchID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLastCheckIn: at,
		fieldUpdatedAt:   at,
	})
	if err != nil {
		return err
	}
	ue.Names["#rt"] = fieldRecoveryTriggered
	ue.Values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldSwitchID, switchID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(" + fieldSwitchID + ") AND #rt = :false"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("switch %s: %w", switchID, domain.ErrAlreadyTriggered)
	}
	return err
}

func (r *SwitchRepo) Delete(ctx context.Context, switchID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldSwitchID, switchID),
	})
	return err
}
