package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix  = "SESSION#"
	skMeta    = "META"
	skHistory = "HISTORY#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25

	// maxInlineImage leaves headroom below the 400 KB item limit.
	maxInlineImage = 350 << 10
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements SessionStore on a single DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ SessionStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// TableName returns the backing table.
func (s *DynamoStore) TableName() string { return s.tableName }

func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

// historySK zero-pads the step so that sort keys order numerically.
func historySK(step int) string {
	return fmt.Sprintf("%s%04d", skHistory, step)
}

func parseHistorySK(sk string) (int, bool) {
	if !strings.HasPrefix(sk, skHistory) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(sk, skHistory))
	return n, err == nil
}

func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(SessionTTL).Unix()
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals data and writes it with PK, SK and TTL.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. Returns false if it does not exist.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// query returns every item of a session whose SK begins with skPrefix; an
// empty prefix matches all items.
func (s *DynamoStore) query(ctx context.Context, sessionID, skPrefix string, keysOnly bool) ([]map[string]types.AttributeValue, error) {
	pk := sessionPK(sessionID)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}
	if skPrefix != "" {
		input.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :skPrefix)")
		input.ExpressionAttributeValues[":skPrefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}
	if keysOnly {
		input.ProjectionExpression = aws.String("PK, SK")
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		items = append(items, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}

// batchDelete deletes items by key, 25 per request.
func (s *DynamoStore) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for i := 0; i < len(keys); i += maxBatchWrite {
		end := min(i+maxBatchWrite, len(keys))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, key := range keys[i:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem delete (%d items): %w", len(requests), err)
		}
		// Unprocessed items are left to the TTL.
	}
	return nil
}

func skOf(item map[string]types.AttributeValue) string {
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		return sk.Value
	}
	return ""
}

// --- Session operations ---

func (s *DynamoStore) PutSession(ctx context.Context, session *Session) error {
	if len(session.Source) > maxInlineImage {
		return fmt.Errorf("put session %s: source: %w", session.ID, ErrInlineTooLarge)
	}
	now := s.now().Unix()
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if err := s.putItem(ctx, sessionPK(session.ID), skMeta, session); err != nil {
		return fmt.Errorf("put session %s: %w", session.ID, err)
	}
	log.Debug().Str("sessionId", session.ID).Str("phase", session.Phase).Msg("Session persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	found, err := s.getItem(ctx, sessionPK(sessionID), skMeta, &session)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if !found {
		return nil, nil
	}
	session.ID = sessionID
	return &session, nil
}

func (s *DynamoStore) UpdateSessionPhase(ctx context.Context, sessionID, phase string, historyIndex int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              itemKey(sessionPK(sessionID), skMeta),
		UpdateExpression: aws.String("SET phase = :p, historyIndex = :h, updatedAt = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: phase},
			":h": &types.AttributeValueMemberN{Value: strconv.Itoa(historyIndex)},
			":u": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("update session phase %s -> %s: %w", sessionID, phase, err)
	}
	log.Debug().Str("sessionId", sessionID).Str("phase", phase).Int("historyIndex", historyIndex).Msg("Session phase updated")
	return nil
}

// --- History operations ---

func (s *DynamoStore) PutHistory(ctx context.Context, sessionID string, rec *HistoryRecord) error {
	if len(rec.Result) > maxInlineImage {
		return fmt.Errorf("put history %s/%d: %w", sessionID, rec.Step, ErrInlineTooLarge)
	}
	if err := s.putItem(ctx, sessionPK(sessionID), historySK(rec.Step), rec); err != nil {
		return fmt.Errorf("put history %s/%d: %w", sessionID, rec.Step, err)
	}
	log.Debug().
		Str("sessionId", sessionID).
		Int("step", rec.Step).
		Str("entryId", rec.EntryID).
		Msg("History record persisted")
	return nil
}

func (s *DynamoStore) GetHistory(ctx context.Context, sessionID string) ([]*HistoryRecord, error) {
	items, err := s.query(ctx, sessionID, skHistory, false)
	if err != nil {
		return nil, fmt.Errorf("get history for %s: %w", sessionID, err)
	}

	records := make([]*HistoryRecord, 0, len(items))
	for _, item := range items {
		step, ok := parseHistorySK(skOf(item))
		if !ok {
			continue
		}
		var rec HistoryRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to unmarshal history record, skipping")
			continue
		}
		rec.Step = step
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}

func (s *DynamoStore) TruncateHistory(ctx context.Context, sessionID string, fromStep int) ([]int, error) {
	items, err := s.query(ctx, sessionID, skHistory, true)
	if err != nil {
		return nil, fmt.Errorf("query history of %s for truncation: %w", sessionID, err)
	}

	var keys []map[string]types.AttributeValue
	var steps []int
	for _, item := range items {
		step, ok := parseHistorySK(skOf(item))
		if !ok || step < fromStep {
			continue
		}
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
		steps = append(steps, step)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return steps, fmt.Errorf("truncate history of %s from %d: %w", sessionID, fromStep, err)
	}
	sort.Ints(steps)

	log.Info().
		Str("sessionId", sessionID).
		Int("fromStep", fromStep).
		Ints("steps", steps).
		Msg("History truncated in DynamoDB")
	return steps, nil
}

func (s *DynamoStore) DeleteSession(ctx context.Context, sessionID string) error {
	items, err := s.query(ctx, sessionID, "", true)
	if err != nil {
		return fmt.Errorf("query session %s for delete: %w", sessionID, err)
	}
	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	log.Debug().Str("sessionId", sessionID).Int("records", len(keys)).Msg("Session deleted from DynamoDB")
	return nil
}
