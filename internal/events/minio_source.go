package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

type OrderEvent struct {
	OrderID   string
	ObjectKey string
	EventName string
}

type OrderEventSource interface {
	Run(ctx context.Context, handler func(context.Context, OrderEvent) error) error
}

type MinioOrderEventSource struct {
	client   *minio.Client
	bucket   string
	snapshot string
}

// NewMinioOrderEventSource listens for objects named snapshot (e.g. "order.json") under
// per-order prefixes.
func NewMinioOrderEventSource(client *minio.Client, bucket string, snapshot string) *MinioOrderEventSource {
	return &MinioOrderEventSource{
		client:   client,
		bucket:   bucket,
		snapshot: snapshot,
	}
}

func (s *MinioOrderEventSource) Run(ctx context.Context, handler func(context.Context, OrderEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, "", s.snapshot, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				objectKey, err := decodeObjectKey(record.S3.Object.Key)
				if err != nil {
					continue
				}
				orderID, err := parseObjectKey(objectKey, s.snapshot)
				if err != nil {
					continue
				}
				event := OrderEvent{
					OrderID:   orderID,
					ObjectKey: objectKey,
					EventName: record.EventName,
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// parseObjectKey extracts the order id from "<orderID>/<snapshot>".
func parseObjectKey(objectKey string, snapshot string) (string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.Split(cleaned, "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("object key %q does not match order_id/%s", objectKey, snapshot)
	}
	orderID := strings.TrimSpace(parts[0])
	if orderID == "" {
		return "", fmt.Errorf("object key %q missing order id", objectKey)
	}
	if parts[1] != snapshot {
		return "", fmt.Errorf("object key %q is not an order snapshot", objectKey)
	}
	return orderID, nil
}
