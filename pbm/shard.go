package pbm

// ShardDescriptor identifies one replica set that owns a (possibly the
// entire) key range. Unsharded deployments have a single implicit shard
// with id "0" (spec §3).
type ShardDescriptor struct {
	ID       string
	RS       string
	Hosts    []string
	MongoURI string
}

// ConnString builds the replica-set connection string for this shard.
func (s ShardDescriptor) ConnString() string {
	uri := "mongodb://"
	for i, h := range s.Hosts {
		if i > 0 {
			uri += ","
		}
		uri += h
	}
	uri += "/?replicaSet=" + s.RS
	return uri
}
