package match

import (
	"fmt"
	"strconv"
	"strings"
)

// Replicated key layout shared by every session of a match.
const (
	PlayersPrefix = "/connected_players"
	PickupsPrefix = "/pickups"
	StartTimeKey  = "/startTime"
)

// PlayerKey is the key of a connected player's record.
func PlayerKey(userID int64) string {
	return fmt.Sprintf("%s/%d", PlayersPrefix, userID)
}

// PickupKey is the key of an active pickup.
func PickupKey(id int64) string {
	return fmt.Sprintf("%s/%d", PickupsPrefix, id)
}

// TrailingID parses the last path segment of a key as an integer id.
func TrailingID(key string) (int64, error) {
	seg := key[strings.LastIndex(key, "/")+1:]
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key %q has no trailing id: %w", key, err)
	}
	return id, nil
}
