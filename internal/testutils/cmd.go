package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// CmdTestCase is a test case for testing cobra CMD flags.
type CmdTestCase struct {
	Name           string
	Short          string
	Default        string
	Dirname        bool
	Filename       bool
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper is a helper function to test cobra CMD flags.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()
	var flag *pflag.Flag

	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.Flags().Lookup(testCase.Name)
	}
	if !assert.NotNil(t, flag, "flag %q should exist", testCase.Name) {
		return
	}
	assert.Equal(t, testCase.Short, flag.Shorthand, "shorthand of flag %q", testCase.Name)

	if testCase.Default != "" {
		assert.Equal(t, testCase.Default, flag.DefValue, "default of flag %q", testCase.Name)
	}

	if testCase.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir], "flag %q should complete directories", testCase.Name)
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir], "flag %q should not complete directories", testCase.Name)
	}

	if testCase.Filename {
		assert.NotNil(t, flag.Annotations[cobra.BashCompFilenameExt], "flag %q should complete file names", testCase.Name)
	}
}
