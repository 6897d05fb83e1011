package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ImageKey addresses a generated image by model and prompt text.
func ImageKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return fmt.Sprintf("image:%s", hex.EncodeToString(sum[:]))
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
