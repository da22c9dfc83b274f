package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JesusBorbon/chat-seguro/internal/message"
)

const (
	databaseName   = "chatseguro"
	collectionName = "mensajes"
)

// mensajeDoc is the persisted layout: the full record plus the insertion
// timestamp the retention queries sort on.
type mensajeDoc struct {
	message.Record `bson:",inline"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// Mongo implements Store on a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Mongo{
		client: client,
		col:    client.Database(databaseName).Collection(collectionName),
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Append(ctx context.Context, rec message.Record) error {
	_, err := m.col.InsertOne(ctx, mensajeDoc{Record: rec, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("insert mensaje: %w", err)
	}
	return nil
}

func (m *Mongo) ListRecent(ctx context.Context, limit int) ([]message.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := m.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find mensajes: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mensajeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode mensajes: %w", err)
	}
	out := make([]message.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Record)
	}
	return out, nil
}

func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count mensajes: %w", err)
	}
	return n, nil
}

func (m *Mongo) DeleteOldest(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(n).
		SetProjection(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("find oldest mensajes: %w", err)
	}
	defer cur.Close(ctx)

	var ids []interface{}
	for cur.Next(ctx) {
		var doc struct {
			ID interface{} `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode mensaje id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate oldest mensajes: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = m.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("delete oldest mensajes: %w", err)
	}
	return nil
}

func (m *Mongo) UpdateReactions(ctx context.Context, id string, reacciones map[string][]string) error {
	_, err := m.col.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"reacciones": reacciones}},
	)
	if err != nil {
		return fmt.Errorf("update reacciones: %w", err)
	}
	return nil
}
