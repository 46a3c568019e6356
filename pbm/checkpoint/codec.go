package checkpoint

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/percona/mongo-shard-replicator/pbm"
)

// encode renders the progress snapshot as the flat JSON array format
// from spec §6: [id0, pos0, id1, pos1, ...].
func encode(snapshot map[string]pbm.LogPosition) ([]byte, error) {
	flat := make([]interface{}, 0, len(snapshot)*2)
	for shard, pos := range snapshot {
		flat = append(flat, shard, pos.ToInt64())
	}
	b, err := json.Marshal(flat)
	return b, errors.Wrap(err, "marshal checkpoint")
}

// decode parses the flat JSON array format. An empty array, or empty
// input, decodes to an empty (not nil) map — "no prior progress".
func decode(data []byte) (map[string]pbm.LogPosition, error) {
	out := make(map[string]pbm.LogPosition)
	if len(data) == 0 {
		return out, nil
	}

	var flat []json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, errors.Wrap(err, "unmarshal checkpoint")
	}
	if len(flat)%2 != 0 {
		return nil, errors.New("checkpoint array has an odd number of elements")
	}

	for i := 0; i < len(flat); i += 2 {
		var shard string
		if err := json.Unmarshal(flat[i], &shard); err != nil {
			return nil, errors.Wrap(err, "decode shard id")
		}
		var raw int64
		if err := json.Unmarshal(flat[i+1], &raw); err != nil {
			return nil, errors.Wrap(err, "decode position")
		}
		out[shard] = pbm.FromInt64(raw)
	}
	return out, nil
}
