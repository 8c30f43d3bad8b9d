package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	// Data is type-specific:
	// - A/AAAA/HINFO: []byte
	// - CNAME/NS/PTR: string
	// - MX: MXData
	// - SOA: SOAData
	// - TXT: either string, []string, or []byte (raw)
	Data any
}

type MXData struct {
	Preference uint16
	Exchange   string
}

// SOAData holds the seven fields of a Start-of-Authority record (RFC 1035 §3.3.13).
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	name = NormalizeName(name)
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrTruncated)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrTruncated)
	}

	var data any
	switch RecordType(rrType) {
	case TypeA:
		if rdlen != 4 {
			return Record{}, fmt.Errorf("%w: A record rdata must be 4 bytes", ErrTruncated)
		}
		b := make([]byte, 4)
		copy(b, msg[*off:*off+4])
		*off += 4
		data = b
	case TypeAAAA:
		if rdlen != 16 {
			return Record{}, fmt.Errorf("%w: AAAA record rdata must be 16 bytes", ErrTruncated)
		}
		b := make([]byte, 16)
		copy(b, msg[*off:*off+16])
		*off += 16
		data = b
	case TypeCNAME, TypeNS, TypePTR:
		n, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for name-based type", ErrDNSError)
		}
		data = NormalizeName(n)
	case TypeMX:
		if *off+2 > len(msg) {
			return Record{}, fmt.Errorf("%w: unexpected EOF while reading MX preference", ErrTruncated)
		}
		pref := binary.BigEndian.Uint16(msg[*off : *off+2])
		*off += 2
		ex, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for MX", ErrDNSError)
		}
		data = MXData{Preference: pref, Exchange: NormalizeName(ex)}
	case TypeSOA:
		soa, err := parseSOA(msg, off, start, int(rdlen))
		if err != nil {
			return Record{}, err
		}
		data = soa
	case TypeTXT:
		txt, err := parseTXT(msg[*off:*off+int(rdlen)])
		if err != nil {
			return Record{}, err
		}
		*off += int(rdlen)
		data = txt
	case TypeHINFO:
		b := make([]byte, rdlen)
		copy(b, msg[*off:*off+int(rdlen)])
		*off += int(rdlen)
		data = b
	default:
		return Record{}, fmt.Errorf("%w: RR type %d", ErrUnsupportedType, rrType)
	}

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

func parseSOA(msg []byte, off *int, start, rdlen int) (SOAData, error) {
	mname, err := DecodeName(msg, off)
	if err != nil {
		return SOAData{}, err
	}
	rname, err := DecodeName(msg, off)
	if err != nil {
		return SOAData{}, err
	}
	if *off+20 > len(msg) {
		return SOAData{}, fmt.Errorf("%w: unexpected EOF while reading SOA fields", ErrTruncated)
	}
	soa := SOAData{
		MName:   NormalizeName(mname),
		RName:   NormalizeName(rname),
		Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
		Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
		Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
		Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
		Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
	}
	*off += 20
	if *off-start != rdlen {
		return SOAData{}, fmt.Errorf("%w: invalid DNS record rdata length for SOA", ErrDNSError)
	}
	return soa, nil
}

// parseTXT reads the length-prefixed character-strings that make up a TXT
// record's RDATA. A TXT record may contain more than one character-string;
// the common single-chunk case round-trips as a plain string so it matches
// what marshalTXT produces for a string input.
func parseTXT(rdata []byte) (any, error) {
	var out []string
	i := 0
	for i < len(rdata) {
		n := int(rdata[i])
		i++
		if i+n > len(rdata) {
			return nil, fmt.Errorf("%w: truncated TXT character-string", ErrTruncated)
		}
		out = append(out, string(rdata[i:i+n]))
		i += n
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func (rr Record) Marshal() ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type != uint16(TypeOPT) {
		b, err := EncodeName(rr.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.marshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

func (rr Record) marshalRData() ([]byte, error) {
	switch RecordType(rr.Type) {
	case TypeA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("%w: A record data must be 4 bytes", ErrDNSError)
		}
		return b, nil
	case TypeAAAA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("%w: AAAA record data must be 16 bytes", ErrDNSError)
		}
		return b, nil
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("%w: MX record data must be MXData", ErrDNSError)
		}
		ex, err := EncodeName(mx.Exchange)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2+len(ex))
		binary.BigEndian.PutUint16(out[0:2], mx.Preference)
		copy(out[2:], ex)
		return out, nil
	case TypeCNAME, TypeNS, TypePTR:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: name-based record data must be a non-empty string", ErrDNSError)
		}
		return EncodeName(s)
	case TypeTXT:
		return marshalTXT(rr.Data)
	case TypeSOA:
		soa, ok := rr.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("%w: SOA record data must be SOAData", ErrDNSError)
		}
		return marshalSOA(soa)
	case TypeHINFO:
		b, ok := rr.Data.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: HINFO record data must be raw bytes", ErrDNSError)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: RR type %d", ErrUnsupportedType, rr.Type)
	}
}

func marshalSOA(soa SOAData) ([]byte, error) {
	mname, err := EncodeName(soa.MName)
	if err != nil {
		return nil, err
	}
	rname, err := EncodeName(soa.RName)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(mname)+len(rname)+20)
	out = append(out, mname...)
	out = append(out, rname...)
	fields := make([]byte, 20)
	binary.BigEndian.PutUint32(fields[0:4], soa.Serial)
	binary.BigEndian.PutUint32(fields[4:8], soa.Refresh)
	binary.BigEndian.PutUint32(fields[8:12], soa.Retry)
	binary.BigEndian.PutUint32(fields[12:16], soa.Expire)
	binary.BigEndian.PutUint32(fields[16:20], soa.Minimum)
	out = append(out, fields...)
	return out, nil
}

func marshalTXT(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return marshalTXTString(t), nil
	case []string:
		// Pre-calculate total size to avoid reallocations
		totalLen := 0
		for _, s := range t {
			totalLen += 1 + len(s) // length byte + string data
		}
		out := make([]byte, 0, totalLen)
		for _, s := range t {
			b := []byte(s)
			if len(b) > 255 {
				return nil, fmt.Errorf("%w: TXT character-string cannot exceed 255 bytes", ErrDNSError)
			}
			out = append(out, byte(len(b)))
			out = append(out, b...)
		}
		return out, nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: TXT record data must be string, []string, or []byte", ErrDNSError)
	}
}

func marshalTXTString(s string) []byte {
	b := []byte(s)
	if len(b) <= 255 {
		out := make([]byte, 1+len(b))
		out[0] = byte(len(b))
		copy(out[1:], b)
		return out
	}
	// Long string: split into 255-byte chunks
	// Calculate total size: len(b) data bytes + (len(b)/255 + 1) length bytes
	numChunks := (len(b) + 254) / 255
	out := make([]byte, 0, len(b)+numChunks)
	for i := 0; i < len(b); i += 255 {
		chunk := b[i:]
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		out = append(out, byte(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}

func (rr Record) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 4 {
		return "", false
	}
	return net.IPv4(b[0], b[1], b[2], b[3]).String(), true
}

func (rr Record) IPv6() (string, bool) {
	if RecordType(rr.Type) != TypeAAAA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 16 {
		return "", false
	}
	return net.IP(b).String(), true
}
