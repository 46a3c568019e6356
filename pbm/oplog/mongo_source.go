package oplog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/mod/semver"

	"github.com/percona/mongo-shard-replicator/pbm"
)

const oplogCollection = "oplog.rs"

// MongoSource is the production Source: a direct connection to one
// shard's primary, tailing its local.oplog.rs the way connector.py's
// OplogThread does (`main_conn['local']['oplog.rs']`).
type MongoSource struct {
	client  *mongo.Client
	version string
}

// NewMongoSource connects to a shard primary at uri.
func NewMongoSource(ctx context.Context, uri string) (*MongoSource, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to shard primary")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "ping shard primary")
	}

	var buildInfo struct {
		Version string `bson:"version"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&buildInfo); err != nil {
		return nil, errors.Wrap(err, "read server version")
	}

	return &MongoSource{client: client, version: "v" + buildInfo.Version}, nil
}

// SupportsResumeTokens reports whether the source server is new enough
// to prefer resume-token-based tailing over raw oplog timestamp
// tailing (semver-gated the way pbm/restore gates behavior on
// mgoV *pbm.MongoVersion).
func (s *MongoSource) SupportsResumeTokens() bool {
	return semver.Compare(semver.MajorMinor(s.version), "v3.6") >= 0
}

func (s *MongoSource) oplog() *mongo.Collection {
	return s.client.Database("local").Collection(oplogCollection)
}

func (s *MongoSource) LastPosition(ctx context.Context) (pbm.LogPosition, error) {
	var entry LogEntry
	err := s.oplog().FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: "$natural", Value: -1}})).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return pbm.Zero, nil
	}
	if err != nil {
		return pbm.Zero, errors.Wrap(err, "read last oplog position")
	}
	return entry.Position, nil
}

func (s *MongoSource) FirstPosition(ctx context.Context) (pbm.LogPosition, error) {
	var entry LogEntry
	err := s.oplog().FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: "$natural", Value: 1}})).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return pbm.Zero, nil
	}
	if err != nil {
		return pbm.Zero, errors.Wrap(err, "read first oplog position")
	}
	return entry.Position, nil
}

func (s *MongoSource) HasEntryAt(ctx context.Context, pos pbm.LogPosition) (bool, error) {
	n, err := s.oplog().CountDocuments(ctx, bson.D{{Key: "ts", Value: pos.Timestamp()}})
	if err != nil {
		return false, errors.Wrap(err, "probe oplog entry")
	}
	return n > 0, nil
}

func (s *MongoSource) TailFrom(ctx context.Context, from pbm.LogPosition) (Cursor, error) {
	filter := bson.D{}
	if from != pbm.Zero {
		// strictly after `from`; the equal entry is the checkpoint
		// itself and must be discarded (spec §4.3.2, invariant P4).
		filter = bson.D{{Key: "ts", Value: bson.D{{Key: "$gt", Value: from.Timestamp()}}}}
	}

	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetNoCursorTimeout(true)

	cur, err := s.oplog().Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open tailable cursor")
	}
	return &mongoCursor{cur: cur}, nil
}

func (s *MongoSource) StreamCollection(ctx context.Context, ns string) (DocStream, error) {
	db, coll, _ := strings.Cut(ns, ".")
	cur, err := s.client.Database(db).Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "stream collection")
	}
	return &mongoDocStream{cur: cur}, nil
}

func (s *MongoSource) NamespaceExists(ctx context.Context, ns string) (bool, error) {
	db, coll, _ := strings.Cut(ns, ".")
	names, err := s.client.Database(db).ListCollectionNames(ctx, bson.D{{Key: "name", Value: coll}})
	if err != nil {
		return false, errors.Wrap(err, "list collections")
	}
	return len(names) > 0, nil
}

func (s *MongoSource) FetchDocument(ctx context.Context, ns string, id interface{}) (map[string]interface{}, bool, error) {
	db, coll, _ := strings.Cut(ns, ".")
	var doc map[string]interface{}
	err := s.client.Database(db).Collection(coll).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "fetch document")
	}
	return doc, true, nil
}

func (s *MongoSource) Close(ctx context.Context) error {
	return errors.Wrap(s.client.Disconnect(ctx), "disconnect shard primary")
}

type mongoCursor struct {
	cur   *mongo.Cursor
	entry LogEntry
	err   error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	if !c.cur.Next(ctx) {
		c.err = c.cur.Err()
		return false
	}
	var e LogEntry
	if err := c.cur.Decode(&e); err != nil {
		c.err = err
		return false
	}
	c.entry = e
	return true
}

func (c *mongoCursor) Entry() LogEntry       { return c.entry }
func (c *mongoCursor) Err() error            { return c.err }
func (c *mongoCursor) Close(ctx context.Context) error {
	return errors.Wrap(c.cur.Close(ctx), "close oplog cursor")
}

type mongoDocStream struct {
	cur *mongo.Cursor
	doc map[string]interface{}
	err error
}

func (s *mongoDocStream) Next(ctx context.Context) bool {
	if !s.cur.Next(ctx) {
		s.err = s.cur.Err()
		return false
	}
	var d map[string]interface{}
	if err := s.cur.Decode(&d); err != nil {
		s.err = err
		return false
	}
	s.doc = d
	return true
}

func (s *mongoDocStream) Doc() map[string]interface{} { return s.doc }
func (s *mongoDocStream) Err() error                  { return s.err }
func (s *mongoDocStream) Close(ctx context.Context) error {
	return errors.Wrap(s.cur.Close(ctx), "close collection stream")
}
