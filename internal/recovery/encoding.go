package recovery

import (
	"encoding/json"
	"strconv"
)

func parseUint(data []byte) (uint64, bool) {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func encodeUint(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

func unquoteJSONString(data []byte) (string, bool, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}
