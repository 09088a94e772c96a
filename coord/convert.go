package coord

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as google.protobuf.Struct, converted through their JSON
// form. Numbers become doubles, so vertex ids above 2^53 lose precision.
const maxExactId = 1 << 53

func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("to struct: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v interface{}) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("from struct: %w", err)
	}
	return nil
}

func checkIds(nodes []uint64) error {
	for _, n := range nodes {
		if n > maxExactId {
			return fmt.Errorf("vertex id %d cannot be sent exactly", n)
		}
	}
	return nil
}
