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

// LinkRepo stores owner-to-beneficiary links. PK: link_id. GSI owner_id-index.
type LinkRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewLinkRepo(client *dynamodb.Client, tableName string) *LinkRepo {
	return &LinkRepo{client: client, tableName: tableName}
}

func (r *LinkRepo) Put(ctx context.Context, l *domain.Link) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *LinkRepo) Get(ctx context.Context, linkID string) (*domain.Link, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldLinkID, linkID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	var l domain.Link
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LinkRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("owner_id-index"),
		KeyConditionExpression: aws.String("owner_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": strVal(ownerID),
		},
	})
	var links []domain.Link
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Link
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		links = append(links, batch...)
	}
	return links, nil
}

// Revoke moves an active link to revoked. Claims already in flight keep
// running; only new submissions are blocked.
func (r *LinkRepo) Revoke(ctx context.Context, linkID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    domain.LinkStatusRevoked,
		fieldRevokedAt: at,
	})
	if err != nil {
		return err
	}
	ue.Names["#st"] = fieldStatus
	ue.Values[":active"] = strVal(domain.LinkStatusActive)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldLinkID, linkID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#st = :active"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("link %s not active: %w", linkID, domain.ErrConflict)
	}
	return err
}
