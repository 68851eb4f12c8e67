package luksipc

import (
	"github.com/johndoe31415/luksipc/internal/ambient"
)

// PrecheckItem is one line of the checklist printed (and logged) before
// any destructive action is taken, mirroring upstream's printCheckListItem
// pass/fail display.
type PrecheckItem struct {
	Description string
	OK          bool
	Fatal       bool // false means this failure was demoted to a warning
}

// RunPreconditionChecks evaluates every precondition that must hold before
// the controller is allowed to mutate the raw device, and returns the full
// checklist plus whether any entry is a still-fatal failure.
func RunPreconditionChecks(r Runner, p *Parameters, uiInfo func(string)) (items []PrecheckItem, ok bool) {
	ok = true

	demote := func(description string, passed bool) PrecheckItem {
		item := PrecheckItem{Description: description, OK: passed}
		if !passed {
			item.Fatal = p.SafetyChecks
			if item.Fatal {
				ok = false
			}
		}
		return item
	}

	if !p.Resuming && !p.ReLuksification {
		items = append(items, demote("raw device is not already a LUKS container", !IsLuks(r, p.RawDevice)))
	}

	items = append(items, demote("backup file does not already exist", !fileExists(p.BackupFile)))

	if !p.Resuming {
		items = append(items, demote("resume file does not already exist", !fileExists(p.ResumeFilename)))
		items = append(items, demote("key file does not already exist", !fileExists(p.KeyFile)))
	}

	items = append(items, demote("raw device is not mounted", !IsBlockDeviceMounted(p.RawDevice)))

	if p.ReLuksification {
		items = append(items, demote("read device is not mounted", !IsBlockDeviceMounted(p.ReadDevice)))
	}

	for _, item := range items {
		status := "ok"
		if !item.OK {
			if item.Fatal {
				status = "FAIL"
			} else {
				status = "warn (safety checks disabled)"
			}
		}
		uiInfo(formatCheckListLine(item.Description, status))
	}

	return items, ok
}

func formatCheckListLine(description, status string) string {
	const width = 60
	padded, _ := SafeStringCopy(description, width)
	for len(padded) < width {
		padded += "."
	}
	return padded + " " + status
}

// logPrecheckResults is a thin adapter so callers that already have an
// ambient.ILogger can pass its Info sink directly as the uiInfo callback.
func logPrecheckResults(logger ambient.ILogger) func(string) {
	return func(msg string) { logger.Log(ambient.ELogLevel.Info(), "%s", msg) }
}
