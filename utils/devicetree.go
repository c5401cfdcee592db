package imxutils

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultDTRoot is where the kernel exposes the flattened device tree.
const DefaultDTRoot = "/proc/device-tree"

// Compatible strings this driver can claim. All later i.MX PWM blocks
// declare themselves imx27-compatible.
var compatibleIDs = []string{"fsl,imx27-pwm"}

// ReadDTProperty returns the raw bytes of a property under a device-tree
// node path relative to root.
func ReadDTProperty(root, node, prop string) ([]byte, error) {
	path := filepath.Join(root, filepath.Clean(node), prop)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading device-tree property %s", path)
	}
	return data, nil
}

// CheckDTCompatible verifies the node declares a PWM block this driver
// knows how to program. The compatible property is a NUL-separated list.
func CheckDTCompatible(root, node string) error {
	data, err := ReadDTProperty(root, node, "compatible")
	if err != nil {
		return err
	}
	for _, entry := range bytes.Split(data, []byte{0}) {
		for _, id := range compatibleIDs {
			if string(entry) == id {
				return nil
			}
		}
	}
	return errors.Errorf("device-tree node %s is not a supported PWM block (compatible %q)",
		node, strings.ReplaceAll(string(bytes.TrimRight(data, "\x00")), "\x00", ","))
}

// ReadDTRegBase returns the physical base address from a node's reg
// property. Cells are big-endian 32-bit words; the address is one word on
// 32-bit SoCs and two on 64-bit ones.
func ReadDTRegBase(root, node string) (uint64, error) {
	data, err := ReadDTProperty(root, node, "reg")
	if err != nil {
		return 0, err
	}
	switch len(data) {
	case 8: // address-cells=1, size-cells=1
		return uint64(binary.BigEndian.Uint32(data)), nil
	case 16: // address-cells=2, size-cells=2
		return binary.BigEndian.Uint64(data), nil
	default:
		return 0, errors.Errorf("unexpected reg property length %d in node %s", len(data), node)
	}
}

// ReadDTClockFrequency returns the clock-frequency property of a node, or
// 0 if the node does not carry one.
func ReadDTClockFrequency(root, node string) (uint64, error) {
	data, err := ReadDTProperty(root, node, "clock-frequency")
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return 0, nil
		}
		return 0, err
	}
	switch len(data) {
	case 4:
		return uint64(binary.BigEndian.Uint32(data)), nil
	case 8:
		return binary.BigEndian.Uint64(data), nil
	default:
		return 0, errors.Errorf("unexpected clock-frequency length %d in node %s", len(data), node)
	}
}

// NodeUnitAddress parses the unit address out of a node path like
// "soc@0/bus@30000000/pwm@30660000". The tree convention is that it
// matches the first reg address, which makes it a usable fallback when
// the reg property cannot be read.
func NodeUnitAddress(node string) (uint64, error) {
	base := filepath.Base(node)
	idx := strings.LastIndex(base, "@")
	if idx < 0 || idx == len(base)-1 {
		return 0, errors.Errorf("device-tree node %s has no unit address", node)
	}
	addr, err := strconv.ParseUint(base[idx+1:], 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing unit address of node %s", node)
	}
	return addr, nil
}
