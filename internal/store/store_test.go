package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
)

// fakeDynamo is an in-memory stand-in for the subset of DynamoDB used here.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func strAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	return strAttr(item["PK"]) + "|" + strAttr(item["SK"])
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	item, ok := f.items[k]
	if !ok {
		item = map[string]types.AttributeValue{"PK": in.Key["PK"], "SK": in.Key["SK"]}
		f.items[k] = item
	}
	item["phase"] = in.ExpressionAttributeValues[":p"]
	item["historyIndex"] = in.ExpressionAttributeValues[":h"]
	item["updatedAt"] = in.ExpressionAttributeValues[":u"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := strAttr(in.ExpressionAttributeValues[":pk"])
	prefix := strAttr(in.ExpressionAttributeValues[":skPrefix"])

	var keys []string
	for k, item := range f.items {
		if strAttr(item["PK"]) == pk && strings.HasPrefix(strAttr(item["SK"]), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, requests := range in.RequestItems {
		for _, r := range requests {
			if r.DeleteRequest != nil {
				delete(f.items, keyOf(r.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]SessionStore {
	t.Helper()
	d := NewDynamoStore(newFakeDynamo(), "sessions")
	d.now = func() time.Time { return fixedNow }
	m := NewMemoryStore()
	m.now = func() time.Time { return fixedNow }
	return map[string]SessionStore{"dynamo": d, "memory": m}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetSession(ctx, "missing")
			if err != nil || got != nil {
				t.Fatalf("GetSession(missing) = %+v, %v", got, err)
			}

			in := &Session{
				ID: "s1", Phase: "upload", Filename: "photo.jpg", MIMEType: "image/jpeg", Width: 1024, Height: 768,
				Source: "s1/original.jpg", Analysis: json.RawMessage(`{"description":"A dog"}`), HistoryIndex: -1,
			}
			if err := s.PutSession(ctx, in); err != nil {
				t.Fatal(err)
			}
			if err := s.UpdateSessionPhase(ctx, "s1", "result", 0); err != nil {
				t.Fatal(err)
			}

			got, err = s.GetSession(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			want := &Session{
				ID: "s1", Phase: "result", Filename: "photo.jpg", MIMEType: "image/jpeg",
				Width: 1024, Height: 768, Source: "s1/original.jpg", Analysis: json.RawMessage(`{"description":"A dog"}`),
				HistoryIndex: 0,
				CreatedAt: fixedNow.Unix(), UpdatedAt: fixedNow.Unix(),
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("session mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHistoryTruncateAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutSession(ctx, &Session{ID: "s1", Phase: "result"}); err != nil {
				t.Fatal(err)
			}
			for step := 0; step < 12; step++ {
				rec := &HistoryRecord{Step: step, EntryID: "e", Instruction: "Blur the background.", Timestamp: fixedNow, Result: "s1/edited-image.png", FromOriginal: step == 5}
				if err := s.PutHistory(ctx, "s1", rec); err != nil {
					t.Fatal(err)
				}
			}

			recs, err := s.GetHistory(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != 12 || recs[0].Step != 0 || recs[11].Step != 11 {
				t.Fatalf("GetHistory() returned %d records", len(recs))
			}
			if !recs[3].Timestamp.Equal(fixedNow) || recs[3].Instruction != "Blur the background." {
				t.Errorf("record = %+v", recs[3])
			}
			if recs[3].FromOriginal || !recs[5].FromOriginal {
				t.Errorf("FromOriginal not preserved: %+v %+v", recs[3], recs[5])
			}

			deleted, err := s.TruncateHistory(ctx, "s1", 10)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]int{10, 11}, deleted); diff != "" {
				t.Errorf("deleted steps (-want +got):\n%s", diff)
			}
			recs, _ = s.GetHistory(ctx, "s1")
			if len(recs) != 10 {
				t.Errorf("after truncate: %d records", len(recs))
			}

			if err := s.DeleteSession(ctx, "s1"); err != nil {
				t.Fatal(err)
			}
			if got, _ := s.GetSession(ctx, "s1"); got != nil {
				t.Errorf("session survived delete: %+v", got)
			}
			if recs, _ := s.GetHistory(ctx, "s1"); len(recs) != 0 {
				t.Errorf("history survived delete: %d", len(recs))
			}
		})
	}
}

func TestDynamoKeysAndTTL(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "sessions")
	s.now = func() time.Time { return fixedNow }

	if err := s.PutHistory(context.Background(), "abc", &HistoryRecord{Step: 7}); err != nil {
		t.Fatal(err)
	}
	item, ok := fake.items["SESSION#abc|HISTORY#0007"]
	if !ok {
		t.Fatalf("item keys = %v", fake.items)
	}
	ttl, ok := item["expiresAt"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatal("missing expiresAt")
	}
	if want := fixedNow.Add(SessionTTL).Unix(); ttl.Value != strconv.FormatInt(want, 10) {
		t.Errorf("expiresAt = %s, want %d", ttl.Value, want)
	}
	if _, ok := item["step"]; ok {
		t.Error("step should be derived from SK, not stored")
	}
}

func TestDynamoRejectsInlineImages(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "sessions")
	big := "data:image/png;base64," + strings.Repeat("A", maxInlineImage)

	if err := s.PutHistory(ctx, "abc", &HistoryRecord{Step: 0, Result: big}); !errors.Is(err, ErrInlineTooLarge) {
		t.Errorf("PutHistory: expected ErrInlineTooLarge, got %v", err)
	}
	if err := s.PutSession(ctx, &Session{ID: "abc", Source: big}); !errors.Is(err, ErrInlineTooLarge) {
		t.Errorf("PutSession: expected ErrInlineTooLarge, got %v", err)
	}
	if len(fake.items) != 0 {
		t.Errorf("oversized records were written: %d items", len(fake.items))
	}

	if err := s.PutHistory(ctx, "abc", &HistoryRecord{Step: 0, Result: "abc/history/step-01.png"}); err != nil {
		t.Errorf("PutHistory with key: %v", err)
	}
}

func TestParseHistorySK(t *testing.T) {
	if n, ok := parseHistorySK("HISTORY#0042"); !ok || n != 42 {
		t.Errorf("parseHistorySK = %d, %v", n, ok)
	}
	if _, ok := parseHistorySK("META"); ok {
		t.Error("META is not a history key")
	}
}
