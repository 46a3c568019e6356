package pbm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cluster is the handle the Supervisor uses to probe and enumerate a
// source deployment: a router (mongos) for sharded clusters, or a
// single replica-set member otherwise.
type Cluster struct {
	client   *mongo.Client
	mainAddr string
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
	Hosts   []string `bson:"hosts"`
}

// Connect opens a session to the cluster entry point, authenticating if
// credentials are supplied (spec §4.1 step 1).
func Connect(ctx context.Context, addr, username, password string) (*Cluster, error) {
	opts := options.Client().ApplyURI(normalizeURI(addr))
	if username != "" {
		opts.SetAuth(options.Credential{Username: username, Password: password})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect to main address")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "ping main address")
	}

	return &Cluster{client: client, mainAddr: addr}, nil
}

func normalizeURI(addr string) string {
	if strings.HasPrefix(addr, "mongodb://") || strings.HasPrefix(addr, "mongodb+srv://") {
		return addr
	}
	return "mongodb://" + addr
}

// Close releases the cluster-entry-point session.
func (c *Cluster) Close(ctx context.Context) error {
	return errors.Wrap(c.client.Disconnect(ctx), "disconnect")
}

// IsSharded probes whether the entry point is a router, the way
// connector.py does by attempting the mongos-only "isdbgrid" command
// (spec §4.1 step 2).
func (c *Cluster) IsSharded(ctx context.Context) (bool, error) {
	err := c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "isdbgrid", Value: 1}}).Err()
	if err == nil {
		return true, nil
	}
	if isNoSuchCommand(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "probe isdbgrid")
}

func isNoSuchCommand(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == 59 || strings.Contains(ce.Message, "no such command")
	}
	return strings.Contains(err.Error(), "no such command")
}

// DiscoverShards enumerates the router's shard catalogue for sharded
// deployments, or builds the single implicit shard "0" for a replica
// set (spec §4.1 "Shard discovery").
func (c *Cluster) DiscoverShards(ctx context.Context) ([]ShardDescriptor, error) {
	sharded, err := c.IsSharded(ctx)
	if err != nil {
		return nil, err
	}

	if !sharded {
		var h helloReply
		err := c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&h)
		if err != nil {
			return nil, errors.Wrap(err, "run hello")
		}
		if h.SetName == "" {
			return nil, errors.New("no replica set at main address; a replica set is required")
		}
		hosts := h.Hosts
		if len(hosts) == 0 {
			hosts = []string{c.mainAddr}
		}
		return []ShardDescriptor{{ID: "0", RS: h.SetName, Hosts: hosts}}, nil
	}

	cur, err := c.client.Database("config").Collection("shards").Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "enumerate config.shards")
	}
	defer cur.Close(ctx)

	var out []ShardDescriptor
	for cur.Next(ctx) {
		var doc struct {
			ID   string `bson:"_id"`
			Host string `bson:"host"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode shard entry")
		}
		rs, hostsStr, ok := strings.Cut(doc.Host, "/")
		if !ok {
			return nil, errors.Errorf("shard %s: the system only supports replica-set shards", doc.ID)
		}
		out = append(out, ShardDescriptor{
			ID:    doc.ID,
			RS:    rs,
			Hosts: strings.Split(hostsStr, ","),
		})
	}
	return out, errors.Wrap(cur.Err(), "iterate config.shards")
}
