package util

import (
	"encoding/binary"
	"hash/fnv"
)

func HashId(vertexId uint64) uint64 {
	inputBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(inputBytes, vertexId)

	algorithm := fnv.New64a()
	algorithm.Write(inputBytes)
	return algorithm.Sum64()
}

// PartitionOf is the hash partition of a vertex among numPartitions.
func PartitionOf(vertexId uint64, numPartitions int) int {
	return int(HashId(vertexId) % uint64(numPartitions))
}
