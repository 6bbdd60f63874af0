package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-dead-mans-switch/internal/domain"
)

// TokenRepo manages owner response tokens.
// PK: token_hash. expires_at is the table TTL attribute.
type TokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTokenRepo(client *dynamodb.Client, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

func (r *TokenRepo) Put(ctx context.Context, t *domain.ResponseToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal response token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Get returns the token unless it is missing or expired at now. TTL deletion
// is lazy, so expiry is checked here too.
func (r *TokenRepo) Get(ctx context.Context, tokenHash string, now time.Time) (*domain.ResponseToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldTokenHash, tokenHash),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("response token not found: %w", domain.ErrNotFound)
	}
	var t domain.ResponseToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	if now.Unix() >= t.ExpiresAt {
		return nil, fmt.Errorf("response token expired: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (r *TokenRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldTokenHash, tokenHash),
	})
	return err
}

// SweepExpired deletes tokens whose expiry has passed and returns how many
// were removed.
func (r *TokenRepo) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		ProjectionExpression:     aws.String("#th"),
		FilterExpression:         aws.String("#ex <= :now"),
		ExpressionAttributeNames: map[string]string{"#th": fieldTokenHash, "#ex": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	removed := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return removed, err
		}
		for _, item := range page.Items {
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       map[string]types.AttributeValue{fieldTokenHash: item[fieldTokenHash]},
			}); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
