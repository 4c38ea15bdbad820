package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("result:%s", jobID)
}
