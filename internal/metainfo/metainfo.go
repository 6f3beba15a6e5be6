package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
	"github.com/mitchellh/mapstructure"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Metainfo is a read-only view over a decoded single-file torrent descriptor.
type Metainfo struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate int64
	Name         string

	// The total length of the file in bytes.
	Length int

	// The nominal piece size. The last piece may differ.
	PieceLength int

	PieceHashes [][sha1.Size]byte

	contentID [sha1.Size]byte
}

// decodeOptional fills target from a key that is not part of the download
// contract. A missing or mistyped value leaves target untouched.
func decodeOptional[T any](dict bencode.Value, key string, target *T) {
	value, exists := dict.Get(key)

	if !exists {
		return
	}

	var decoded T

	if err := mapstructure.Decode(value.Interface(), &decoded); err != nil {
		return
	}

	*target = decoded
}

func requireFields(dict bencode.Value, scope string, fields map[string]bencode.Kind) error {
	for key, expectedKind := range fields {
		value, exists := dict.Get(key)

		if !exists {
			return fmt.Errorf("%w: %s dictionary is missing required property '%s'", ErrMissingField, scope, key)
		}

		if receivedKind := value.Kind(); receivedKind != expectedKind {
			return fmt.Errorf("%w: expected the '%s' property to be of type '%s', but received '%s'", ErrInvalidMetadata, key, expectedKind, receivedKind)
		}
	}

	return nil
}

func parsePieceHashes(pieces []byte) ([][sha1.Size]byte, error) {
	if len(pieces)%sha1.Size != 0 {
		return nil, fmt.Errorf("%w: 'pieces' length %d is not a multiple of %d", bencode.ErrMalformedInput, len(pieces), sha1.Size)
	}

	hashes := make([][sha1.Size]byte, len(pieces)/sha1.Size)

	for index := range hashes {
		copy(hashes[index][:], pieces[index*sha1.Size:])
	}

	return hashes, nil
}

// Parse decodes a descriptor and derives the content identifier from the
// canonical re-encoding of its info dictionary. Only single-file layouts are
// supported.
func Parse(data []byte) (*Metainfo, error) {
	root, err := bencode.Decode(data)

	if err != nil {
		return nil, fmt.Errorf("failed to decode metainfo file: %w", err)
	}

	if root.Kind() != bencode.DictKind {
		return nil, fmt.Errorf("%w: expected metainfo to be a bencoded dictionary, but received '%s'", ErrInvalidMetadata, root.Kind())
	}

	if err := requireFields(root, "metainfo", map[string]bencode.Kind{"announce": bencode.StringKind, "info": bencode.DictKind}); err != nil {
		return nil, err
	}

	infoDict, _ := root.Get("info")

	if _, isMultiFile := infoDict.Get("files"); isMultiFile {
		if _, hasLength := infoDict.Get("length"); !hasLength {
			return nil, fmt.Errorf("%w: metainfo 'info' dictionary has no 'length' property (multi-file torrents are not supported)", ErrMissingField)
		}
	}

	if err := requireFields(infoDict, "metainfo 'info'", map[string]bencode.Kind{
		"length":       bencode.IntegerKind,
		"piece length": bencode.IntegerKind,
		"pieces":       bencode.StringKind,
	}); err != nil {
		return nil, err
	}

	announce, _ := root.Get("announce")
	lengthValue, _ := infoDict.Get("length")
	pieceLengthValue, _ := infoDict.Get("piece length")
	piecesValue, _ := infoDict.Get("pieces")

	announceURL, _ := announce.AsString()
	length, _ := lengthValue.AsInteger()
	pieceLength, _ := pieceLengthValue.AsInteger()
	pieces, _ := piecesValue.AsBytes()

	if length <= 0 {
		return nil, fmt.Errorf("%w: file must have a positive length, got %d", ErrInvalidMetadata, length)
	}

	if pieceLength <= 0 {
		return nil, fmt.Errorf("%w: 'piece length' must be positive, got %d", ErrInvalidMetadata, pieceLength)
	}

	pieceHashes, err := parsePieceHashes(pieces)

	if err != nil {
		return nil, fmt.Errorf("failed to parse pieces hashes: %w", err)
	}

	if len(pieceHashes) == 0 {
		return nil, fmt.Errorf("%w: metainfo does not list any piece hashes", ErrInvalidMetadata)
	}

	encodedInfo, err := bencode.Encode(infoDict)

	if err != nil {
		return nil, fmt.Errorf("failed to encode metainfo 'info' dictionary: %w", err)
	}

	mi := &Metainfo{
		Announce:    announceURL,
		Length:      int(length),
		PieceLength: int(pieceLength),
		PieceHashes: pieceHashes,
		contentID:   sha1.Sum(encodedInfo),
	}

	decodeOptional(root, "announce-list", &mi.AnnounceList)
	decodeOptional(root, "comment", &mi.Comment)
	decodeOptional(root, "created by", &mi.CreatedBy)
	decodeOptional(root, "creation date", &mi.CreationDate)

	if name, ok := infoDict.Get("name"); ok {
		mi.Name, _ = name.AsString()
	}

	if _, err := mi.PieceSize(mi.PieceCount() - 1); err != nil {
		return nil, err
	}

	return mi, nil
}

// ContentID is the SHA-1 of the canonical info dictionary. It identifies the
// swarm and is the value exchanged during the peer handshake.
func (m *Metainfo) ContentID() [sha1.Size]byte {
	return m.contentID
}

func (m *Metainfo) PieceCount() int {
	return len(m.PieceHashes)
}

// PieceSize returns PieceLength for every piece except the last, which holds
// whatever remains of Length.
func (m *Metainfo) PieceSize(index int) (int, error) {
	numOfPieces := m.PieceCount()

	if index < 0 || index >= numOfPieces {
		return 0, fmt.Errorf("%w: piece index %d is out of range [0, %d)", ErrInvalidMetadata, index, numOfPieces)
	}

	if index < numOfPieces-1 {
		return m.PieceLength, nil
	}

	lastPieceSize := m.Length - m.PieceLength*(numOfPieces-1)

	if lastPieceSize <= 0 {
		return 0, fmt.Errorf(
			"%w: length %d is too short for %d pieces of %d bytes",
			ErrInvalidMetadata,
			m.Length,
			numOfPieces,
			m.PieceLength,
		)
	}

	return lastPieceSize, nil
}

func (m *Metainfo) PieceHash(index int) ([sha1.Size]byte, error) {
	if index < 0 || index >= m.PieceCount() {
		return [sha1.Size]byte{}, fmt.Errorf("%w: piece index %d is out of range [0, %d)", ErrInvalidMetadata, index, m.PieceCount())
	}

	return m.PieceHashes[index], nil
}
