package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dinner-chat/internal/domain"
)

const (
	skPrefixExchange = "EXCH#"
	skMeta           = "META#"
	ttlDuration      = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client archives completed exchanges in a single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// exchangeSK zero-pads the turn so lexical order matches turn order.
func exchangeSK(turn int) string {
	return fmt.Sprintf("%s%06d", skPrefixExchange, turn)
}

// ttlValue returns a Unix timestamp 30 days after t.
func ttlValue(t time.Time) int64 {
	return t.Add(ttlDuration).Unix()
}

var now = time.Now

// SaveExchange writes the exchange and the updated session metadata in one
// transaction. Re-writing an existing turn fails the condition check.
func (c *Client) SaveExchange(ctx context.Context, sessionID string, turn int, model, question, answer string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: SaveExchange: session id is required")
	}
	if turn <= 0 {
		return errors.New("repository: SaveExchange: turn must be positive")
	}
	ex := NewExchange(sessionID, turn, model, question, answer)
	meta := NewSessionMeta(sessionID, turn)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(ex),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

// GetExchanges returns up to limit of the most recent exchanges of a session,
// oldest first.
func (c *Client) GetExchanges(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixExchange},
		},
		// Read newest first so LIMIT favors the most recent exchanges.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetExchanges query: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		ex, err := itemToExchange(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetExchanges unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// GetSessionMeta returns the archived metadata of a session, or ok=false when
// nothing was archived for it.
func (c *Client) GetSessionMeta(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: GetSessionMeta get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMeta{}, false, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: GetSessionMeta decode turns: %w", err)
	}
	lastActivity, _ := strAttr(out.Item, "lastActivity") // allow empty
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		LastActivity: lastActivity,
		Turns:        turns,
	}, true, nil
}

// NewExchange constructs an Exchange with PK/SK/TTL derived from the session and turn.
func NewExchange(sessionID string, turn int, model, question, answer string) domain.Exchange {
	return domain.Exchange{
		PK:        sessionPK(sessionID),
		SK:        exchangeSK(turn),
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Model:     model,
		Turn:      turn,
		TTL:       ttlValue(now()),
	}
}

// NewSessionMeta constructs a SessionMeta record.
func NewSessionMeta(sessionID string, turns int) domain.SessionMeta {
	ts := now().UTC()
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		LastActivity: ts.Format(time.RFC3339),
		Turns:        turns,
		TTL:          ttlValue(ts),
	}
}

func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Exchange{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Exchange{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Exchange{}, err
	}
	turn, err := intAttr(item, "turn")
	if err != nil {
		return domain.Exchange{}, err
	}
	sessionID, _ := strAttr(item, "sessionId") // allow empty
	answer, _ := strAttr(item, "answer")
	model, _ := strAttr(item, "model")

	return domain.Exchange{
		PK:        pk,
		SK:        sk,
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Model:     model,
		Turn:      turn,
	}, nil
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: ex.PK},
		"SK":        &types.AttributeValueMemberS{Value: ex.SK},
		"sessionId": &types.AttributeValueMemberS{Value: ex.SessionID},
		"question":  &types.AttributeValueMemberS{Value: ex.Question},
		"answer":    &types.AttributeValueMemberS{Value: ex.Answer},
		"model":     &types.AttributeValueMemberS{Value: ex.Model},
		"turn":      &types.AttributeValueMemberN{Value: strconv.Itoa(ex.Turn)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.TTL, 10)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: meta.PK},
		"SK":           &types.AttributeValueMemberS{Value: meta.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: meta.SessionID},
		"lastActivity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":        &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.TTL, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
