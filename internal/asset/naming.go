package asset

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

const (
	// TimestampFormat is the layout of the create_ts and update_ts attributes.
	TimestampFormat = "2006-01-02T15:04:05-0700"

	nameSuffixRange = 100000000

	// maxNameAttempts bounds the name regeneration on collisions.
	maxNameAttempts = 32
)

var (
	// UUIDNamespace is the namespace of asset uuids derived from the manufacturer, model and serial.
	UUIDNamespace = uuid.UUID{0x93, 0x3d, 0x6c, 0x80, 0xde, 0xa9, 0x8c, 0x6b, 0xd1, 0x11, 0x8b, 0x3b, 0x46, 0xa1, 0x81, 0xf1}

	errNameGeneration = errors.New("unable to generate a unique asset name")
)

func randIntn(n int) int {
	// nolint:gosec // asset names are not security sensitive
	return rand.Intn(n)
}

// GenerateUUID returns the asset uuid, a name based uuid when the manufacturer,
// model and serial are all known and a random one otherwise.
func GenerateUUID(manufacturer, model, serial string) uuid.UUID {
	if manufacturer == "" || model == "" || serial == "" {
		return uuid.New()
	}

	return uuid.NewSHA1(UUIDNamespace, []byte(manufacturer+model+serial))
}

// namePrefix returns the subtype for devices and the type for other assets.
func namePrefix(asset *model.Asset) string {
	if asset.Type == model.TypeDevice && asset.Subtype != "" {
		return asset.Subtype
	}

	return asset.Type.String()
}

// uniqueName returns an unused internal name for the asset.
func (e *Engine) uniqueName(ctx context.Context, tx store.Tx, asset *model.Asset) (string, error) {
	prefix := namePrefix(asset)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%s-%08d", prefix, e.randIntn(nameSuffixRange))

		id, err := tx.IDByName(ctx, name)
		if err != nil {
			return "", err
		}

		if id == 0 {
			return name, nil
		}

		e.logger.WithField("name", name).Debug("generated asset name exists, retrying")
	}

	return "", errors.Wrap(errNameGeneration, prefix)
}

func (e *Engine) timestamp() string {
	return e.now().Format(TimestampFormat)
}
