package luksipc

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// dmRemoveRetries and dmRemoveRetryDelay account for the kernel briefly
// holding a mapper device busy right after close (udev probing is the
// usual culprit), matching upstream luksipc's dmRemove retry loop.
const (
	dmRemoveRetries    = 10
	dmRemoveRetryDelay = time.Second
)

// IsLuks reports whether dev is already a LUKS container.
func IsLuks(r Runner, dev string) bool {
	res, err := r.Run([]string{"cryptsetup", "isLuks", dev})
	if err != nil {
		return false
	}
	return res.Executed && res.ExitCode == 0
}

// IsMapperNameAvailable reports whether name is free for use as a new
// device-mapper target. cryptsetup status exits 4 for "does not exist".
func IsMapperNameAvailable(r Runner, name string) bool {
	res, err := r.Run([]string{"cryptsetup", "status", name})
	if err != nil {
		return false
	}
	return res.Executed && res.ExitCode == 4
}

// LuksFormat runs cryptsetup luksFormat against dev, splitting extra on
// commas to build the extra argument list (e.g. "--cipher,aes-xts-plain64,--key-size,512").
func LuksFormat(r Runner, dev, keyfile string, extra LuksFormatParams) bool {
	argv := []string{"cryptsetup", "luksFormat", "-q", "--key-file", keyfile}
	argv = append(argv, splitCommaArgs(extra)...)
	argv = append(argv, dev)
	res, err := r.Run(argv)
	if err != nil {
		return false
	}
	return res.Executed && res.ExitCode == 0
}

func splitCommaArgs(extra LuksFormatParams) []string {
	var out []string
	for _, item := range extra {
		for _, piece := range strings.Split(item, ",") {
			if piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

// LuksOpen opens dev as handle using keyfile.
func LuksOpen(r Runner, dev, keyfile, handle string) bool {
	res, err := r.Run([]string{"cryptsetup", "luksOpen", "--key-file", keyfile, dev, handle})
	if err != nil {
		return false
	}
	return res.Executed && res.ExitCode == 0
}

// DmCreateLinearAlias creates a 1:1 linear device-mapper alias of srcDev
// under handle and verifies the alias reports the same size before
// declaring success.
func DmCreateLinearAlias(r Runner, srcDev, handle string) error {
	size, err := DiskSizeOfPath(srcDev)
	if err != nil {
		return errors.Wrapf(err, "determining size of %s", srcDev)
	}
	if size%512 != 0 {
		return errors.Errorf("size of %s (%d) is not a multiple of the 512-byte sector size", srcDev, size)
	}
	sectors := size / 512

	table := fmt.Sprintf("0 %d linear %s 0", sectors, srcDev)
	res, err := r.Run([]string{"dmsetup", "create", handle, "--table", table})
	if err != nil || !res.Executed || res.ExitCode != 0 {
		return errors.Errorf("dmsetup create %s failed", handle)
	}

	aliasPath := "/dev/mapper/" + handle
	aliasSize, err := DiskSizeOfPath(aliasPath)
	if err != nil || aliasSize != size {
		_, _ = r.Run([]string{"dmsetup", "remove", handle})
		return errors.Errorf("alias %s reports size %d, expected %d", handle, aliasSize, size)
	}
	return nil
}

// DmCreateDynamicAlias synthesizes a handle named alias_<prefix>_<8 hex>
// and creates a linear alias under it, returning the /dev/mapper path.
func DmCreateDynamicAlias(r Runner, srcDev, prefix string) (string, error) {
	handle := fmt.Sprintf("alias_%s_%s", prefix, RandomHexTag(8))
	if err := DmCreateLinearAlias(r, srcDev, handle); err != nil {
		return "", err
	}
	return "/dev/mapper/" + handle, nil
}

// DmRemove removes a device-mapper node, retrying while the kernel
// transiently reports it busy.
func DmRemove(r Runner, handle string) bool {
	for attempt := 0; attempt < dmRemoveRetries; attempt++ {
		res, err := r.Run([]string{"dmsetup", "remove", handle})
		if err == nil && res.Executed && res.ExitCode == 0 {
			return IsMapperNameAvailable(r, handle)
		}
		time.Sleep(dmRemoveRetryDelay)
	}
	return false
}
