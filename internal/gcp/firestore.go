package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// settingDoc is the shape of one document in the settings collection. The document id is the key.
type settingDoc struct {
	Value string `firestore:"value"`
}

type docGetter func(ctx context.Context, key string) (*settingDoc, error)

// FirestoreSettings is a settings store where each key is a document in one collection.
type FirestoreSettings struct {
	collection string
	get        docGetter
}

func NewFirestoreSettings(client *firestore.Client, collection string) *FirestoreSettings {
	col := client.Collection(collection)
	return &FirestoreSettings{
		collection: collection,
		get: func(ctx context.Context, key string) (*settingDoc, error) {
			snap, err := col.Doc(key).Get(ctx)
			if err != nil {
				return nil, err
			}
			var doc settingDoc
			if err := snap.DataTo(&doc); err != nil {
				return nil, err
			}
			return &doc, nil
		},
	}
}

// Setting returns the value stored under key. A missing document reports ok=false.
func (s *FirestoreSettings) Setting(ctx context.Context, key string) (string, bool, error) {
	doc, err := s.get(ctx, key)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s/%s: %w", s.collection, key, err)
	}
	if doc.Value == "" {
		return "", false, nil
	}
	return doc.Value, true, nil
}
