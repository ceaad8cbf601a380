package discovery

import (
	"fmt"
	"strings"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyTransport] = info.Transport
	txt[TXTKeyReliabilities] = info.Reliabilities.String()

	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	if info.Protocol != "" {
		txt[TXTKeyProtocol] = info.Protocol
	}
	return txt
}

// DecodeTXT parses TXT records into the connection fields of a
// ServiceInfo. Instance and Port come from the DNS-SD entry itself.
func DecodeTXT(txt TXTRecordMap) (*ServiceInfo, error) {
	info := &ServiceInfo{}

	var ok bool
	info.Transport, ok = txt[TXTKeyTransport]
	if !ok || info.Transport == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyTransport)
	}

	relStr, ok := txt[TXTKeyReliabilities]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyReliabilities)
	}
	rels, err := parseReliabilities(relStr)
	if err != nil {
		return nil, err
	}
	info.Reliabilities = rels

	info.Path = txt[TXTKeyPath]
	info.Protocol = txt[TXTKeyProtocol]
	return info, nil
}

func parseReliabilities(s string) (wire.ReliabilitySet, error) {
	var levels []wire.Reliability
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r, err := wire.ParseReliability(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		levels = append(levels, r)
	}
	if len(levels) == 0 {
		return 0, fmt.Errorf("%w: no reliabilities", ErrInvalidTXTRecord)
	}
	return wire.NewReliabilitySet(levels...), nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
