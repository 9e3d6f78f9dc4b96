package cmdline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type cQDisc struct {
	Kind    string          `json:"kind"`
	Handle  string          `json:"handle"`
	Parent  *string         `json:"parent,omitempty"`
	Root    bool            `json:"root,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
}

type cHTBQDiscOptions struct {
	R2Q *uint32 `json:"r2q,omitempty"`
	// Default is printed either as a hex string ("0x20") or as a number depending on tc version
	Default json.RawMessage `json:"default,omitempty"`
}

type cClass struct {
	Kind   string  `json:"class"`
	Handle string  `json:"handle"`
	Parent *string `json:"parent,omitempty"`
	Root   bool    `json:"root,omitempty"`
	Prio   *uint32 `json:"prio,omitempty"`
	// Rate and Ceil are in bytes per second
	Rate uint64 `json:"rate"`
	Ceil uint64 `json:"ceil"`
}

type cFilter struct {
	Protocol string          `json:"protocol"`
	Priority uint16          `json:"pref"`
	Kind     string          `json:"kind"`
	Options  json.RawMessage `json:"options,omitempty"`
}

type cFlowerOptions struct {
	Handle  uint32      `json:"handle"`
	ClassID *string     `json:"classid,omitempty"`
	Keys    cFlowerKeys `json:"keys"`
	Actions []cAction   `json:"actions"`
}

type cFlowerKeys struct {
	VlanEthType *string `json:"vlan_ethtype,omitempty"`
	IPProto     *string `json:"ip_proto,omitempty"`
	SrcIP       *string `json:"src_ip,omitempty"`
	DstIP       *string `json:"dst_ip,omitempty"`
	SrcPort     *uint16 `json:"src_port,omitempty"`
	DstPort     *uint16 `json:"dst_port,omitempty"`
}

// cU32Options are the options of a u32 filter entry. tc emits one "match" member per key within the
// same object so it cannot be decoded into a plain struct.
type cU32Options struct {
	FlowID  *string
	Keys    []cU32Key
	Actions []cAction
}

type cU32Key struct {
	Value   string `json:"value"`
	Mask    string `json:"mask"`
	OffMask string `json:"offmask"`
	Off     int32  `json:"off"`
}

// UnmarshalJSON implements json.Unmarshaler
func (o *cU32Options) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("unexpected u32 options token: %v", tok)
	}

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected u32 options key: %v", tok)
		}

		switch key {
		case "flowid", "classid":
			var flowID string
			err = dec.Decode(&flowID)
			o.FlowID = &flowID
		case "match":
			var k cU32Key
			err = dec.Decode(&k)
			o.Keys = append(o.Keys, k)
		case "actions":
			err = dec.Decode(&o.Actions)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

type cAction struct {
	Order         uint           `json:"order"`
	Kind          string         `json:"kind"`
	ControlAction cControlAction `json:"control_action"`
	// police only, printed as strings (4Mbit, 10Kb) or numbers (bytes) depending on tc version
	Rate  json.RawMessage `json:"rate,omitempty"`
	Burst json.RawMessage `json:"burst,omitempty"`
}

type cControlAction struct {
	Type string `json:"type"`
}
