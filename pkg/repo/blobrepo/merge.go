// Copyright © 2018 One Concern

package blobrepo

import (
	"bytes"
)

// mergeLines appends to durable content the pending lines which are not already present.
//
// Lines are compared without their line terminator. The durable content is preserved as is,
// and pending lines keep their order.
func mergeLines(durable []byte, pending [][]byte) []byte {
	seen := make(map[string]struct{})
	for _, line := range bytes.Split(durable, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		seen[string(line)] = struct{}{}
	}

	var out bytes.Buffer
	out.Grow(len(durable) + pendingSize(pending))
	out.Write(durable)
	terminated := len(durable) == 0 || durable[len(durable)-1] == '\n'

	for _, line := range pending {
		key := string(bytes.TrimSuffix(line, []byte{'\n'}))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if !terminated {
			out.WriteByte('\n')
		}
		out.WriteString(key)
		out.WriteByte('\n')
		terminated = true
	}
	return out.Bytes()
}

func pendingSize(lines [][]byte) int {
	var size int
	for _, line := range lines {
		size += len(line)
	}
	return size
}
