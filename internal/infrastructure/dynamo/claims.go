package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-dead-mans-switch/internal/domain"
)

// ClaimRepo stores death claims. Every write also touches the link lock and
// appends the verification event in the same transaction.
// PK: claim_id.
type ClaimRepo struct {
	client      *dynamodb.Client
	tableName   string
	linksTable  string
	eventsTable string
}

func NewClaimRepo(client *dynamodb.Client, claimsTable, linksTable, eventsTable string) *ClaimRepo {
	return &ClaimRepo{client: client, tableName: claimsTable, linksTable: linksTable, eventsTable: eventsTable}
}

// Create stores a new claim and takes the link's active-claim lock. It fails
// with domain.ErrDuplicateActiveClaim when the link already holds a
// non-terminal claim and with domain.ErrClaimNotAuthorized when the link was
// revoked or removed.
func (r *ClaimRepo) Create(ctx context.Context, c *domain.DeathClaim, ev *domain.VerificationEvent) error {
	claimItem, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	eventItem, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.linksTable),
				Key:                 strKey(fieldLinkID, c.LinkID),
				UpdateExpression:    aws.String("SET #ac = :cid"),
				ConditionExpression: aws.String("attribute_exists(#lid) AND #st = :active AND attribute_not_exists(#ac)"),
				ExpressionAttributeNames: map[string]string{
					"#ac":  fieldActiveClaimID,
					"#lid": fieldLinkID,
					"#st":  fieldStatus,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":cid":    strVal(c.ClaimID),
					":active": strVal(domain.LinkStatusActive),
				},
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                claimItem,
				ConditionExpression: aws.String("attribute_not_exists(" + fieldClaimID + ")"),
			}},
			{Put: &types.Put{
				TableName: aws.String(r.eventsTable),
				Item:      eventItem,
			}},
		},
	})
	if failed, ok := canceledByCondition(err); ok {
		if len(failed) > 0 && failed[0] == 0 {
			return linkRejection(c.LinkID, cancellationItem(err, 0))
		}
		return fmt.Errorf("claim %s exists: %w", c.ClaimID, domain.ErrConflict)
	}
	return err
}

// linkRejection explains a failed link condition from the stored link.
func linkRejection(linkID string, item map[string]types.AttributeValue) error {
	var l domain.Link
	if item != nil {
		if err := attributevalue.UnmarshalMap(item, &l); err != nil {
			return fmt.Errorf("unmarshal link: %w", err)
		}
	}
	if item == nil || l.Status != domain.LinkStatusActive {
		return fmt.Errorf("link %s not active: %w", linkID, domain.ErrClaimNotAuthorized)
	}
	return fmt.Errorf("link %s: %w", linkID, domain.ErrDuplicateActiveClaim)
}

// Transition replaces prev with next only if the stored claim still matches
// prev's stage, status and counters, and appends events atomically. A terminal
// next releases the link lock. Losing the race yields domain.ErrConflict.
func (r *ClaimRepo) Transition(ctx context.Context, prev, next *domain.DeathClaim, events []domain.VerificationEvent) error {
	claimItem, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                claimItem,
			ConditionExpression: aws.String("#cs = :cs AND #st = :st AND #ec = :ec AND #pc = :pc"),
			ExpressionAttributeNames: map[string]string{
				"#cs": fieldCurrentStage,
				"#st": fieldStatus,
				"#ec": fieldEmailCount,
				"#pc": fieldPhoneCount,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cs": strVal(prev.CurrentStage),
				":st": strVal(prev.Status),
				":ec": numVal(prev.EmailVerificationCount),
				":pc": numVal(prev.PhoneVerificationCount),
			},
		}},
	}
	for i := range events {
		eventItem, err := attributevalue.MarshalMap(&events[i])
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.eventsTable),
			Item:      eventItem,
		}})
	}
	if next.Terminal() {
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(r.linksTable),
			Key:                      strKey(fieldLinkID, next.LinkID),
			UpdateExpression:         aws.String("REMOVE #ac"),
			ExpressionAttributeNames: map[string]string{"#ac": fieldActiveClaimID},
		}})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if _, ok := canceledByCondition(err); ok {
		return fmt.Errorf("claim %s changed concurrently: %w", prev.ClaimID, domain.ErrConflict)
	}
	return err
}

func (r *ClaimRepo) Get(ctx context.Context, claimID string) (*domain.DeathClaim, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldClaimID, claimID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, domain.ErrClaimNotFound)
	}
	var c domain.DeathClaim
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActive returns every non-terminal claim.
func (r *ClaimRepo) ListActive(ctx context.Context) ([]domain.DeathClaim, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("#st <> :rejected AND #cs <> :completed"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
			"#cs": fieldCurrentStage,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rejected":  strVal(domain.ClaimStatusRejected),
			":completed": strVal(domain.StageCompleted),
		},
	})
	var claims []domain.DeathClaim
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.DeathClaim
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		claims = append(claims, batch...)
	}
	return claims, nil
}
