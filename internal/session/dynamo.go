package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
)

// DynamoAPI is the slice of the DynamoDB client the store needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore is a Store backed by a DynamoDB table keyed by session_id.
// Concurrent invocations for the same call are serialized by a conditional
// put on the stored turn count; the table's TTL attribute handles retention.
type DynamoStore struct {
	client    DynamoAPI
	table     string
	retention time.Duration
	log       *logging.Logger
}

// NewDynamoStore creates a store writing to the given table.
func NewDynamoStore(client DynamoAPI, table string, retention time.Duration, log *logging.Logger) *DynamoStore {
	return &DynamoStore{
		client:    client,
		table:     table,
		retention: retention,
		log:       log.Sub("session.dynamo"),
	}
}

// dynamoTurn mirrors domain.Turn with attributevalue tags.
type dynamoTurn struct {
	Index      int    `dynamodbav:"turn_index"`
	CallerText string `dynamodbav:"caller_text"`
	AgentText  string `dynamodbav:"agent_text"`
	Action     string `dynamodbav:"action"`
	Verdict    string `dynamodbav:"verdict"`
	Timestamp  int64  `dynamodbav:"timestamp"` // unix millis
	LatencyMs  int64  `dynamodbav:"latency_ms"`
}

// dynamoSession is the stored item shape.
type dynamoSession struct {
	SessionID      string            `dynamodbav:"session_id"`
	CallerNumber   string            `dynamodbav:"caller_number,omitempty"`
	Channel        string            `dynamodbav:"channel,omitempty"`
	State          string            `dynamodbav:"state"`
	TurnCount      int               `dynamodbav:"turn_count"`
	StartedAt      int64             `dynamodbav:"started_at"`
	LastActivityAt int64             `dynamodbav:"last_activity_at"`
	History        []dynamoTurn      `dynamodbav:"history,omitempty"`
	Attributes     map[string]string `dynamodbav:"attributes,omitempty"`
	Evicted        int               `dynamodbav:"evicted,omitempty"`
	Failures       int               `dynamodbav:"failures,omitempty"`
	TTL            int64             `dynamodbav:"ttl"` // unix seconds, table TTL attribute
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) (*domain.CallSession, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var rec dynamoSession
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}

	// Expired items linger until DynamoDB's TTL sweep; treat them as gone.
	if rec.TTL > 0 && rec.TTL < time.Now().Unix() {
		return nil, ErrNotFound
	}

	return rec.toDomain(), nil
}

func (s *DynamoStore) Save(ctx context.Context, sess *domain.CallSession, expectedTurnCount int) error {
	item, err := attributevalue.MarshalMap(fromDomain(sess, s.retention))
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.SessionID, err)
	}

	// A fresh session may create the item; an in-flight one must find the
	// stored turn count unchanged. TTL-purged rows therefore conflict,
	// same as the other backends.
	cond := "turn_count = :expected"
	if expectedTurnCount == 0 {
		cond = "attribute_not_exists(session_id) OR turn_count = :expected"
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String(cond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedTurnCount)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return &ConflictError{SessionID: sess.SessionID, Expected: expectedTurnCount}
		}
		return fmt.Errorf("saving session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// callerKey namespaces caller profiles in the same table as sessions.
// Contact IDs are UUIDs, so the prefix cannot collide.
func callerKey(number string) string {
	return "caller#" + number
}

// dynamoCaller is the stored caller profile shape.
type dynamoCaller struct {
	SessionID    string            `dynamodbav:"session_id"` // caller#<number>
	CallerNumber string            `dynamodbav:"caller_number"`
	TotalCalls   int               `dynamodbav:"total_calls"`
	LastSeenAt   int64             `dynamodbav:"last_seen_at"`
	Preferences  map[string]string `dynamodbav:"preferences,omitempty"`
}

func (s *DynamoStore) Profile(ctx context.Context, callerNumber string) (*domain.CallerProfile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: callerKey(callerNumber)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("loading caller %s: %w", callerNumber, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var rec dynamoCaller
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decoding caller %s: %w", callerNumber, err)
	}
	return &domain.CallerProfile{
		CallerNumber: rec.CallerNumber,
		TotalCalls:   rec.TotalCalls,
		LastSeenAt:   time.UnixMilli(rec.LastSeenAt),
		Preferences:  rec.Preferences,
	}, nil
}

func (s *DynamoStore) RecordCall(ctx context.Context, sess *domain.CallSession) error {
	if sess.CallerNumber == "" {
		return nil
	}

	p, err := s.Profile(ctx, sess.CallerNumber)
	if errors.Is(err, ErrNotFound) {
		p = &domain.CallerProfile{CallerNumber: sess.CallerNumber}
	} else if err != nil {
		return err
	}
	foldCall(p, sess)

	item, err := attributevalue.MarshalMap(dynamoCaller{
		SessionID:    callerKey(p.CallerNumber),
		CallerNumber: p.CallerNumber,
		TotalCalls:   p.TotalCalls,
		LastSeenAt:   p.LastSeenAt.UnixMilli(),
		Preferences:  p.Preferences,
	})
	if err != nil {
		return fmt.Errorf("encoding caller %s: %w", p.CallerNumber, err)
	}

	// Profiles are write-rarely best-effort state; last writer wins.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("recording call for %s: %w", p.CallerNumber, err)
	}
	return nil
}

func fromDomain(sess *domain.CallSession, retention time.Duration) dynamoSession {
	rec := dynamoSession{
		SessionID:      sess.SessionID,
		CallerNumber:   sess.CallerNumber,
		Channel:        sess.Channel,
		State:          string(sess.State),
		TurnCount:      sess.TurnCount,
		StartedAt:      sess.StartedAt.UnixMilli(),
		LastActivityAt: sess.LastActivityAt.UnixMilli(),
		Attributes:     sess.Attributes,
		Evicted:        sess.Evicted,
		Failures:       sess.Failures,
		TTL:            sess.LastActivityAt.Add(retention).Unix(),
	}
	for _, t := range sess.History {
		rec.History = append(rec.History, dynamoTurn{
			Index:      t.Index,
			CallerText: t.CallerText,
			AgentText:  t.AgentText,
			Action:     string(t.Action),
			Verdict:    string(t.Verdict),
			Timestamp:  t.Timestamp.UnixMilli(),
			LatencyMs:  t.Latency.Milliseconds(),
		})
	}
	return rec
}

func (rec dynamoSession) toDomain() *domain.CallSession {
	sess := &domain.CallSession{
		SessionID:      rec.SessionID,
		CallerNumber:   rec.CallerNumber,
		Channel:        rec.Channel,
		State:          domain.SessionState(rec.State),
		TurnCount:      rec.TurnCount,
		StartedAt:      time.UnixMilli(rec.StartedAt),
		LastActivityAt: time.UnixMilli(rec.LastActivityAt),
		Attributes:     rec.Attributes,
		Evicted:        rec.Evicted,
		Failures:       rec.Failures,
	}
	for _, t := range rec.History {
		sess.History = append(sess.History, domain.Turn{
			Index:      t.Index,
			CallerText: t.CallerText,
			AgentText:  t.AgentText,
			Action:     domain.Action(t.Action),
			Verdict:    domain.Verdict(t.Verdict),
			Timestamp:  time.UnixMilli(t.Timestamp),
			Latency:    time.Duration(t.LatencyMs) * time.Millisecond,
		})
	}
	return sess
}
