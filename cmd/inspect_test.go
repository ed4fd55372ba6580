// File: cmd/inspect_test.go
package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wizprobe/internal/mocks"
)

const inspectedPage = `<html><body>
<h2>Proje Bilgileri</h2>
<select id="district"><option value="">Seçiniz</option><option value="kepez" selected>Kepez</option></select>
<input id="ada" type="text" placeholder="Ada No" value="">
<input type="hidden" name="csrf" value="x">
<button id="lookup">Sorgula</button>
<button class="btn primary" disabled>Sonraki Adım</button>
</body></html>`

// scriptedPage answers locator probes with found and text reads with the
// static page above.
func scriptedPage(found bool) *mocks.MockPage {
	page := new(mocks.MockPage)
	page.On("Navigate", mock.Anything, "http://wizard.test/").Return(nil)
	page.On("WaitReady", mock.Anything).Return(nil)
	page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		switch out := args.Get(2).(type) {
		case *bool:
			*out = found
		case *string:
			if strings.Contains(args.String(1), "outerHTML") {
				*out = inspectedPage
			} else {
				*out = "Proje Bilgileri"
			}
		}
	}).Return(nil)
	page.On("Close", mock.Anything).Return(nil)
	return page
}

func TestInspectCmd(t *testing.T) {
	stubSeams(t)
	page := scriptedPage(true)
	page.On("Click", mock.Anything, mock.Anything).Return(nil).Once()
	driver := newClosingDriver()
	driver.On("NewPage", mock.Anything).Return(page, nil)
	useDriver(t, driver)

	out, err := executeCommand(t, "inspect", "--url", "http://wizard.test/", "--config", writeConfig(t, ""))
	require.NoError(t, err)

	assert.Contains(t, out, "# Wizard controls at http://wizard.test/")
	assert.Contains(t, out, "## Inputs (2)")
	assert.Contains(t, out, "Ada No")
	assert.Contains(t, out, "kepez")
	assert.Contains(t, out, "## Buttons (2)")
	assert.Contains(t, out, "Sonraki Adım")
	assert.NotContains(t, out, "csrf")
	page.AssertExpectations(t)
	driver.AssertExpectations(t)
}

func TestInspectCmd_StartControlMissing(t *testing.T) {
	stubSeams(t)
	page := scriptedPage(false)
	driver := newClosingDriver()
	driver.On("NewPage", mock.Anything).Return(page, nil)
	useDriver(t, driver)

	out, err := executeCommand(t, "inspect", "--url", "http://wizard.test/", "--config", writeConfig(t, ""))
	require.NoError(t, err)

	assert.Contains(t, out, "## Inputs (2)")
	page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestInspectCmd_NavigationFailure(t *testing.T) {
	stubSeams(t)
	page := new(mocks.MockPage)
	page.On("Navigate", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	page.On("Close", mock.Anything).Return(nil)
	driver := newClosingDriver()
	driver.On("NewPage", mock.Anything).Return(page, nil)
	useDriver(t, driver)

	_, err := executeCommand(t, "inspect", "--url", "http://wizard.test/", "--config", writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	page.AssertExpectations(t)
}
