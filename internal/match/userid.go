package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/ugaemi/netraiders-server/internal/store"
)

const maxUserID = 100000
const maxRetries = 100

// ErrNoUserID is returned when no free user id was found.
var ErrNoUserID = errors.New("no free user id")

// AllocateUserID picks a random user id in [1, maxUserID] that no connected
// player currently holds. A nil rng uses the shared source.
func AllocateUserID(ctx context.Context, st store.Store, rng *rand.Rand) (int64, error) {
	intn := rand.Int63n
	if rng != nil {
		intn = rng.Int63n
	}

	for range maxRetries {
		id := 1 + intn(maxUserID)
		_, err := st.Get(ctx, PlayerKey(id))
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, fmt.Errorf("checking user id %d: %w", id, err)
		}
	}
	return 0, ErrNoUserID
}
