package sink

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/percona/mongo-shard-replicator/pbm"
	"github.com/percona/mongo-shard-replicator/pbm/formatter"
)

// MongoMirror is a reference Sink that replicates into another MongoDB
// cluster. It is not a "concrete sink implementation for a search
// engine" (out of scope per spec §1); it exists so the fan-out,
// formatter and rollback paths have a real non-simulator target to
// exercise, and because connector.py itself notes that destination
// namespace remapping is "currently only implemented for mongo-to-mongo
// connections".
type MongoMirror struct {
	client    *mongo.Client
	uniqueKey string
	fmt       formatter.Formatter
}

// NewMongoMirror connects to uri and returns a Sink that writes into
// it, formatting every document with fmt before the write (spec §4.6:
// "The formatter is invoked by sinks, not the Tailer").
func NewMongoMirror(ctx context.Context, uri, uniqueKey string, fmt formatter.Formatter) (*MongoMirror, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mirror target")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "ping mirror target")
	}
	if uniqueKey == "" {
		uniqueKey = "_id"
	}
	if fmt == nil {
		fmt = formatter.Default{}
	}
	return &MongoMirror{client: client, uniqueKey: uniqueKey, fmt: fmt}, nil
}

func (m *MongoMirror) collection(ns string) *mongo.Collection {
	db, coll, _ := strings.Cut(ns, ".")
	return m.client.Database(db).Collection(coll)
}

func (m *MongoMirror) Upsert(ctx context.Context, doc Doc, ns string, position pbm.LogPosition) error {
	id := doc[m.uniqueKey]
	formatted := m.fmt.FormatDocument(doc)
	formatted["_id"] = id
	formatted["ns"] = ns
	formatted["_ts"] = position.ToInt64()

	_, err := m.collection(ns).ReplaceOne(ctx,
		bson.M{"_id": id}, formatted, options.Replace().SetUpsert(true))
	return errors.Wrap(err, "mirror upsert")
}

func (m *MongoMirror) BulkUpsert(ctx context.Context, docs DocIterator, ns string, position pbm.LogPosition) error {
	var models []mongo.WriteModel
	for docs.Next(ctx) {
		doc := docs.Doc()
		id := doc[m.uniqueKey]
		formatted := m.fmt.FormatDocument(doc)
		formatted["_id"] = id
		formatted["ns"] = ns
		formatted["_ts"] = position.ToInt64()
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(formatted).
			SetUpsert(true))
	}
	if err := docs.Err(); err != nil {
		return errors.Wrap(err, "iterate bulk upsert stream")
	}
	if len(models) == 0 {
		return pbm.ErrEmptyStream
	}

	_, err := m.collection(ns).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return errors.Wrap(err, "mirror bulk upsert")
}

func (m *MongoMirror) Remove(ctx context.Context, id interface{}, ns string, _ pbm.LogPosition) error {
	_, err := m.collection(ns).DeleteOne(ctx, bson.M{"_id": id})
	return errors.Wrap(err, "mirror remove")
}

func (m *MongoMirror) Search(ctx context.Context, ns string, startTS, endTS pbm.LogPosition) (DocIterator, error) {
	cur, err := m.collection(ns).Find(ctx, bson.M{
		"_ts": bson.M{"$gte": startTS.ToInt64(), "$lte": endTS.ToInt64()},
	})
	if err != nil {
		return nil, errors.Wrap(err, "mirror search")
	}
	return &cursorIterator{cur: cur}, nil
}

func (m *MongoMirror) GetLastDoc(ctx context.Context, ns string) (Doc, bool, error) {
	var doc Doc
	err := m.collection(ns).FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.M{"_ts": -1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "mirror get last doc")
	}
	return doc, true, nil
}

func (m *MongoMirror) Commit(context.Context) error { return nil }

func (m *MongoMirror) Stop(ctx context.Context) error {
	return errors.Wrap(m.client.Disconnect(ctx), "disconnect mirror target")
}

func (m *MongoMirror) HandleCommand(ctx context.Context, cmd Doc, ns string, _ pbm.LogPosition) error {
	db, _, _ := strings.Cut(ns, ".")
	switch {
	case cmd["drop"] != nil:
		return errors.Wrap(m.collection(ns).Drop(ctx), "mirror drop collection")
	case cmd["dropDatabase"] != nil:
		return errors.Wrap(m.client.Database(db).Drop(ctx), "mirror drop database")
	case cmd["renameCollection"] != nil:
		// cross-collection rename has no single-collection driver call;
		// approximate with drop-and-recreate is unsafe, so this is logged
		// as unsupported by the caller instead (spec §4.3.2).
		return errors.New("rename command is not supported by the mirror sink")
	default:
		return nil
	}
}

type cursorIterator struct {
	cur *mongo.Cursor
	doc Doc
	err error
}

func (c *cursorIterator) Next(ctx context.Context) bool {
	if !c.cur.Next(ctx) {
		return false
	}
	var doc Doc
	if err := c.cur.Decode(&doc); err != nil {
		c.err = err
		return false
	}
	c.doc = doc
	return true
}

func (c *cursorIterator) Doc() Doc   { return c.doc }
func (c *cursorIterator) Err() error { return c.err }
func (c *cursorIterator) Close() error {
	return c.cur.Close(context.Background())
}
