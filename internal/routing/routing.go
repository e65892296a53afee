// Package routing maps record IDs to clusters, shards and replica sets.
//
// Routing uses xxhash64, which is seedless and defined byte-for-byte, so an
// ID lands on the same shard in every process and on every platform. Any change
// to the functions in this package must bump HashVersion.
package routing

import (
	"github.com/cespare/xxhash/v2"
)

// HashVersion identifies the routing function. Shard membership is only
// reproducible between processes that agree on it.
const HashVersion = 1

// Hash returns the stable 64-bit hash of a record ID.
func Hash(id string) uint64 {
	return xxhash.Sum64String(id)
}

// ShardIndex returns stableHash(id) mod numShards.
func ShardIndex(id string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	return int(Hash(id) % uint64(numShards))
}

// ClusterIndex picks the cluster for id. The hash is remixed first so that the
// cluster choice is independent of the shard choice inside the cluster;
// otherwise equal cluster and shard counts would pin every cluster to one shard.
func ClusterIndex(id string, numClusters int) int {
	if numClusters <= 1 {
		return 0
	}
	return int(mix64(Hash(id)) % uint64(numClusters))
}

// Replicas returns the primary shard for id followed by the next
// replicationFactor shards, wrapping around.
func Replicas(id string, numShards, replicationFactor int) []int {
	return replicasOf(ShardIndex(id, numShards), numShards, replicationFactor)
}

// replicasOf expands a primary shard index into its replica set.
func replicasOf(primary, numShards, replicationFactor int) []int {
	if replicationFactor >= numShards {
		replicationFactor = numShards - 1
	}
	if replicationFactor < 0 {
		replicationFactor = 0
	}
	out := make([]int, 0, replicationFactor+1)
	for i := 0; i <= replicationFactor; i++ {
		out = append(out, (primary+i)%numShards)
	}
	return out
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
