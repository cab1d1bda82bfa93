package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrerelease(t *testing.T) {
	tests := []struct {
		name       string
		tag        string
		wantPre    bool
		wantString string
	}{
		{"release", "", false, "tickpulse v" + Version},
		{"release candidate", "rc.1", true, "tickpulse v" + Version + "-rc.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := Prerelease
			Prerelease = tt.tag
			t.Cleanup(func() { Prerelease = old })

			assert.Equal(t, tt.wantPre, IsPrerelease())
			assert.Equal(t, tt.wantString, GetVersionString())

			info := GetVersionInfo()
			assert.Equal(t, tt.wantPre, info.Prerelease)
			assert.Equal(t, FullVersion(), info.Version)
			assert.Equal(t, APIVersion, info.APIVersion)
		})
	}
}
