package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"study-planner/domain"
)

// TableClient is the subset of Azure Table operations TablePersister needs.
type TableClient interface {
	ListPartition(ctx context.Context, partitionKey string) ([][]byte, error)
	UpsertEntity(ctx context.Context, entity []byte) error
	DeleteEntity(ctx context.Context, partitionKey, rowKey string) error
}

type azureTable struct {
	client *aztables.Client
}

// NewTableClient connects to the named table using a storage connection string.
func NewTableClient(connStr, table string) (TableClient, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &azureTable{client: svc.NewClient(table)}, nil
}

func (t *azureTable) ListPartition(ctx context.Context, partitionKey string) ([][]byte, error) {
	filter := "PartitionKey eq '" + partitionKey + "'"
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}

func (t *azureTable) UpsertEntity(ctx context.Context, entity []byte) error {
	_, err := t.client.UpsertEntity(ctx, entity, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (t *azureTable) DeleteEntity(ctx context.Context, partitionKey, rowKey string) error {
	_, err := t.client.DeleteEntity(ctx, partitionKey, rowKey, nil)
	return err
}

type recordEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Date         string `json:"Date"`
	Description  string `json:"Description"`
}

// TablePersister stores one kind as a partition of an Azure table. Row keys
// are zero-padded positions so the table's key order is the sequence order.
type TablePersister struct {
	client TableClient
	kind   domain.Kind
}

func NewTablePersister(client TableClient, kind domain.Kind) *TablePersister {
	return &TablePersister{client: client, kind: kind}
}

func rowKey(position int) string {
	return fmt.Sprintf("%08d", position)
}

func (p *TablePersister) Load(ctx context.Context) ([]domain.Record, error) {
	rows, err := p.client.ListPartition(ctx, string(p.kind))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotPersisted
	}
	records := make([]domain.Record, 0, len(rows))
	for _, raw := range rows {
		var ent recordEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return nil, fmt.Errorf("decode %s entity: %w", p.kind, err)
		}
		rec := domain.Record{Title: ent.Title, Description: ent.Description}
		if d, err := domain.ParseDate(ent.Date); err == nil {
			rec.Date = d
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save upserts every position and then deletes rows past the new length.
func (p *TablePersister) Save(ctx context.Context, records []domain.Record) error {
	partition := string(p.kind)
	for i, r := range records {
		payload, err := json.Marshal(recordEntity{
			PartitionKey: partition,
			RowKey:       rowKey(i),
			Title:        r.Title,
			Date:         r.Date.String(),
			Description:  r.Description,
		})
		if err != nil {
			return err
		}
		if err := p.client.UpsertEntity(ctx, payload); err != nil {
			return fmt.Errorf("upsert %s row %d: %w", p.kind, i, err)
		}
	}

	rows, err := p.client.ListPartition(ctx, partition)
	if err != nil {
		return err
	}
	for _, raw := range rows {
		var keys struct {
			RowKey string `json:"RowKey"`
		}
		if err := json.Unmarshal(raw, &keys); err != nil {
			return err
		}
		pos, err := strconv.Atoi(keys.RowKey)
		if err != nil || pos >= len(records) {
			if err := p.client.DeleteEntity(ctx, partition, keys.RowKey); err != nil {
				return fmt.Errorf("delete %s row %s: %w", p.kind, keys.RowKey, err)
			}
		}
	}
	return nil
}
