package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerProjectKeysAreNamespacedAndDistinct(t *testing.T) {
	const projectID = "proj-1"

	keys := map[string]string{
		"identitysource": identitySourceKey(projectID),
		"schema":         schemaKey(projectID),
		"policyset":      policySetKey(projectID),
		"entities":       entitiesKey(projectID),
	}

	seen := map[string]struct{}{}
	for label, k := range keys {
		assert.Contains(t, k, projectID, label)
		assert.Contains(t, k, "cedrus:p:", label)
		_, dup := seen[k]
		assert.False(t, dup, "duplicate key for %s", label)
		seen[k] = struct{}{}
	}
}

func TestProjectsKeyIsGlobalAndStable(t *testing.T) {
	assert.Equal(t, "cedrus:projects", projectsKey())
	assert.NotContains(t, projectsKey(), "proj-1")
}
