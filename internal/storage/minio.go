package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// OrderSnapshotName is the object name whose creation starts an assignment workflow.
const OrderSnapshotName = "order.json"

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func OrderSnapshotKey(orderID string) string {
	return path.Join(orderID, OrderSnapshotName)
}

func DecisionKey(orderID, decisionID string) string {
	return path.Join(orderID, "decisions", decisionID+".json")
}

func (m *MinioStore) PutOrderSnapshot(ctx context.Context, orderID string, payload []byte) (string, error) {
	key := OrderSnapshotKey(orderID)
	if err := m.putJSON(ctx, key, payload); err != nil {
		return "", err
	}
	return key, nil
}

func (m *MinioStore) PutDecision(ctx context.Context, orderID, decisionID string, payload []byte) (string, error) {
	key := DecisionKey(orderID, decisionID)
	if err := m.putJSON(ctx, key, payload); err != nil {
		return "", err
	}
	return key, nil
}

func (m *MinioStore) putJSON(ctx context.Context, key string, payload []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *MinioStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
