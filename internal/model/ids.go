package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	punctRe = regexp.MustCompile(`[\p{P}\p{S}]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// hash8 returns the first 8 hex characters of the md5 digest of s.
// Used for every deterministic identifier so re-ingesting the same bytes
// reproduces the same graph.
func hash8(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// CanonicalName normalizes an entity name for identity comparison:
// lowercase, punctuation stripped, whitespace collapsed.
func CanonicalName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = punctRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ChunkID builds the deterministic chunk id for a document chunk.
// Stable across re-ingestion of the same bytes.
func ChunkID(documentID int64, index int, content string) string {
	return fmt.Sprintf("doc%d_chunk%d_%s", documentID, index, hash8(content))
}

// DocumentNodeID builds the graph node id for a document record.
func DocumentNodeID(documentID int64) string {
	return fmt.Sprintf("doc_%d", documentID)
}

// EntityNodeID builds the deterministic graph node id for an entity,
// keyed on canonical name and type so duplicates across chunks collapse.
func EntityNodeID(name, entityType string) string {
	return "entity_" + hash8(strings.ToLower(name)+"_"+entityType)
}

// EdgeID builds the deterministic graph edge id for a typed edge.
func EdgeID(sourceID, targetID, edgeType string) string {
	return "rel_" + hash8(sourceID+"_"+targetID+"_"+edgeType)
}

// ExtractedEntityID builds the extraction-time entity id. It may be
// reassigned when the entity is merged into the shared graph.
func ExtractedEntityID(chunkID string, index int) string {
	return fmt.Sprintf("%s_entity_%d", chunkID, index)
}

// ExtractedRelationID builds the extraction-time relation id.
func ExtractedRelationID(chunkID string, index int) string {
	return fmt.Sprintf("%s_rel_%d", chunkID, index)
}

// CommunityID builds the community node id for a cluster at a level.
func CommunityID(level, clusterID int) string {
	return fmt.Sprintf("%d-%d", level, clusterID)
}
