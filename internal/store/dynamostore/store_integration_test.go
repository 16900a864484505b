package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/radiojournal/backend/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type integrationItem struct {
	PK      string  `dynamodbav:"pk"`
	SK      string  `dynamodbav:"sk"`
	GSI1PK  *string `dynamodbav:"gsi1pk,omitempty"`
	ID      string  `dynamodbav:"id"`
	TrackID string  `dynamodbav:"track_id"`
	Count   int64   `dynamodbav:"count"`
	First   *string `dynamodbav:"first"`
}

func TestDynamoDBLocalIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker/container runtime unavailable: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:2.5.2",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory"},
		WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(60 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker/container runtime unavailable: %v", err)
	}
	defer func() { _ = ctr.Terminate(ctx) }()

	host, _ := ctr.Host(ctx)
	port, _ := ctr.MappedPort(ctx, "8000")

	s, err := Open(ctx, Config{
		Region:          "us-east-1",
		Endpoint:        fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKeyID:     "local",
		SecretAccessKey: "local",
		TableName:       "journal_it",
		Logger:          zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	if err := s.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure table is not idempotent: %v", err)
	}

	index := "TRACK#t1#2024-01"
	counter := integrationItem{PK: "STATIONS", SK: "STATION#s1", ID: "s1"}
	if err := s.Put(ctx, store.Put{Item: counter, Conditions: []store.Condition{store.Absent("id")}}); err != nil {
		t.Fatalf("put counter: %v", err)
	}
	if err := s.Put(ctx, store.Put{Item: counter, Conditions: []store.Condition{store.Absent("id")}}); !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected duplicate put to fail, got %v", err)
	}

	stationUpdate := func(firstPlay string) store.WriteOp {
		return store.WriteOp{Update: &store.Update{
			Key:        store.Key{PK: "STATIONS", SK: "STATION#s1"},
			Set:        []store.Assignment{{Attr: "first", Value: firstPlay}},
			Increment:  []store.Increment{{Attr: "count", By: 1}},
			Conditions: []store.Condition{store.Equals("id", "s1"), store.Absent("first")},
		}}
	}
	play := func(id string) store.WriteOp {
		return store.WriteOp{Put: &store.Put{Item: integrationItem{
			PK: "STATION#s1#PLAYS#2024-01-01", SK: "PLAY#" + id, GSI1PK: &index, ID: id, TrackID: "t1",
		}}}
	}

	if err := s.Transact(ctx, []store.WriteOp{play("p1"), stationUpdate("p1")}); err != nil {
		t.Fatalf("first transaction: %v", err)
	}
	if err := s.Transact(ctx, []store.WriteOp{play("p2"), stationUpdate("p2")}); !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected guarded transaction to fail, got %v", err)
	}

	record, err := s.Get(ctx, store.Key{PK: "STATIONS", SK: "STATION#s1"}, store.GetOptions{ConsistentRead: true})
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	var stored integrationItem
	if err := record.Decode(&stored); err != nil {
		t.Fatalf("decode counter: %v", err)
	}
	if stored.Count != 1 || stored.First == nil || *stored.First != "p1" {
		t.Fatalf("unexpected counter state %+v", stored)
	}

	page, err := s.Query(ctx, store.Query{
		Index:        store.IndexGSI1,
		PartitionKey: index,
		Filters:      []store.Condition{store.BeginsWith(store.AttrPK, "STATION#s1#PLAYS#")},
		Descending:   true,
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("query index: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected only the committed play in the index, got %d", len(page.Records))
	}
}
