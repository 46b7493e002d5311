package main

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/horgh/irc"
)

// Raw bytes per streamed chunk. Base64 expands this to ~600 characters,
// which stays under the protocol line limit.
const transferChunkSize = 450

// Transfer is one file transfer session between two connected clients.
type Transfer struct {
	ID int

	SenderID   uint64
	ReceiverID uint64

	// Original filename, as provided by the sender.
	Filename string

	// Sanitized filename. Also the name of the source file we stream,
	// relative to the server's working directory.
	SafeName string

	// Server-side path where bytes are stored.
	SavedPath string

	// Declared size. Advisory only.
	SizeTotal uint64

	// Bytes observed so far. Always equals the bytes appended to SavedPath.
	SizeSeen uint64

	Accepted bool
	Active   bool
}

// TransferManager owns all file transfer sessions. It is only ever touched
// from the event loop goroutine. It reads and writes the filesystem under
// the uploads directory and never touches channel state.
type TransferManager struct {
	srv    *Server
	nextID int
	byID   map[int]*Transfer
}

// NewTransferManager creates a TransferManager.
func NewTransferManager(srv *Server) *TransferManager {
	return &TransferManager{
		srv:    srv,
		nextID: 1,
		byID:   make(map[int]*Transfer),
	}
}

// sanitizeFilename strips any path components and replaces every character
// outside [A-Za-z0-9._-] with '_'. An empty result becomes "file".
func sanitizeFilename(name string) string {
	if idx := strings.LastIndexAny(name, "/\\"); idx != -1 {
		name = name[idx+1:]
	}

	b := []byte(name)
	for i := 0; i < len(b); i++ {
		c := b[i]
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '.' || c == '_' || c == '-'
		if !ok {
			b[i] = '_'
		}
	}

	if len(b) == 0 {
		return "file"
	}
	return string(b)
}

// decodeBase64 decodes standard-alphabet base64. Non-alphabet characters are
// ignored and decoding stops at the first '='.
func decodeBase64(s string) ([]byte, error) {
	var filtered strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' {
			break
		}
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '+' || c == '/' {
			filtered.WriteByte(c)
		}
	}

	return base64.RawStdEncoding.DecodeString(filtered.String())
}

// numericTo queues a numeric to a client by id, if it is still connected.
func (tm *TransferManager) numericTo(id uint64, code string, params []string) {
	if c, exists := tm.srv.Clients[id]; exists {
		c.messageFromServer(code, params)
	}
}

// numericBoth queues a numeric to both parties of a session.
func (tm *TransferManager) numericBoth(t *Transfer, code string,
	params []string) {
	tm.numericTo(t.SenderID, code, params)
	tm.numericTo(t.ReceiverID, code, params)
}

func (tm *TransferManager) failTransfer(t *Transfer, reason string) {
	t.Active = false
	tm.numericBoth(t, "400", []string{strconv.Itoa(t.ID), reason})
}

// offerCommand handles FILESEND <nick> <size> :<filename>.
//
// It allocates a session id, prepares the server-side destination file, and
// notifies both parties: 739 to the sender, 738 to the receiver.
func (tm *TransferManager) offerCommand(c *Client, m irc.Message) {
	if len(m.Params) < 3 || len(m.Params[2]) == 0 {
		c.messageFromServer("461", []string{"FILESEND", "Not enough parameters"})
		return
	}

	receiver := tm.srv.findClientByNick(m.Params[0])
	if receiver == nil {
		c.messageFromServer("401", []string{m.Params[0], "No such nick"})
		return
	}

	if receiver.ID == c.ID {
		c.messageFromServer("400", []string{"0",
			"Cannot send a file to yourself"})
		return
	}

	sizeTotal, err := strconv.ParseUint(m.Params[1], 10, 64)
	if err != nil {
		c.messageFromServer("461", []string{"FILESEND", "Not enough parameters"})
		return
	}

	filename := m.Params[2]
	safe := sanitizeFilename(filename)

	if err := os.MkdirAll(tm.srv.Config.UploadsDir, 0755); err != nil {
		tm.srv.log.Errorf("Transfer: unable to create uploads dir: %s", err)
		c.messageFromServer("400", []string{"0",
			"Cannot create uploads directory"})
		return
	}

	id := tm.nextID
	tm.nextID++

	savedPath := filepath.Join(tm.srv.Config.UploadsDir,
		fmt.Sprintf("%d_%s", id, safe))

	// Create/truncate the destination now so we can stream to disk later.
	f, err := os.Create(savedPath)
	if err != nil {
		tm.srv.log.Errorf("Transfer %d: unable to create %s: %s", id, savedPath,
			err)
		c.messageFromServer("400", []string{strconv.Itoa(id),
			"Cannot create destination"})
		return
	}
	_ = f.Close()

	t := &Transfer{
		ID:         id,
		SenderID:   c.ID,
		ReceiverID: receiver.ID,
		Filename:   filename,
		SafeName:   safe,
		SavedPath:  savedPath,
		SizeTotal:  sizeTotal,
		Active:     true,
	}
	tm.byID[id] = t

	tm.srv.log.Infof("Transfer %d: offer %s -> %s (%s, %d bytes)", id,
		c.DisplayNick, receiver.DisplayNick, safe, sizeTotal)

	// 739: offer sent. 738: offer received.
	tm.numericTo(t.SenderID, "739", []string{strconv.Itoa(id), filename,
		fmt.Sprintf("OFFER SENT to %s", receiver.DisplayNick)})
	tm.numericTo(t.ReceiverID, "738", []string{strconv.Itoa(id), filename,
		fmt.Sprintf("OFFER from %s (%d bytes)", c.DisplayNick, sizeTotal)})
}

// acceptCommand handles FILEACCEPT <id>.
//
// Only the recorded receiver may accept. On accept the server streams the
// sanitized source file from its working directory to the receiver in
// base64 chunks (740), appending every raw chunk to the server-side copy
// and feeding a running CRC32, then reports completion (741), the saved
// path (744), and the checksum (745).
func (tm *TransferManager) acceptCommand(c *Client, m irc.Message) {
	if len(m.Params) < 1 {
		c.messageFromServer("461", []string{"FILEACCEPT",
			"Not enough parameters"})
		return
	}

	t, ok := tm.lookupActive(c, m.Params[0])
	if !ok {
		return
	}

	if t.ReceiverID != c.ID {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Only receiver may accept"})
		return
	}

	t.Accepted = true
	tm.numericBoth(t, "742", []string{strconv.Itoa(t.ID), "ACCEPTED"})

	tm.stream(t)
}

func (tm *TransferManager) stream(t *Transfer) {
	src, err := os.Open(t.SafeName)
	if err != nil {
		tm.failTransfer(t, "Cannot open source")
		return
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(t.SavedPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		tm.failTransfer(t, "Cannot write to destination")
		return
	}
	defer func() { _ = dst.Close() }()

	tm.numericBoth(t, "746", []string{"STREAM", "BEGIN " + t.SafeName})

	crc := uint32(0)
	buf := make([]byte, transferChunkSize)

	for {
		n, err := src.Read(buf)

		if n > 0 {
			chunk := buf[:n]

			crc = crc32.Update(crc, crc32.IEEETable, chunk)
			t.SizeSeen += uint64(n)

			if _, err := dst.Write(chunk); err != nil {
				tm.failTransfer(t, "Cannot write to destination")
				return
			}

			tm.numericTo(t.ReceiverID, "740", []string{
				base64.StdEncoding.EncodeToString(chunk),
			})
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			tm.failTransfer(t, "Error reading source")
			return
		}
	}

	t.Active = false

	idStr := strconv.Itoa(t.ID)

	tm.numericBoth(t, "741", []string{t.SafeName, "FILE DONE"})

	sizePair := fmt.Sprintf("(%d)", t.SizeSeen)
	if t.SizeTotal > 0 {
		sizePair = fmt.Sprintf("(%d/%d)", t.SizeSeen, t.SizeTotal)
	}
	tm.numericBoth(t, "744", []string{idStr,
		fmt.Sprintf("SAVED %s %s", t.SavedPath, sizePair)})

	tm.numericBoth(t, "745", []string{idStr,
		fmt.Sprintf("HASH CRC32 %08X", crc)})

	tm.srv.log.Infof("Transfer %d: done, %d bytes, crc %08X", t.ID, t.SizeSeen,
		crc)
}

// dataCommand handles FILEDATA <id> <base64>, the legacy manual push path.
// The decoded bytes are appended to the server-side copy and the same
// base64 chunk is forwarded to the receiver as a 740.
func (tm *TransferManager) dataCommand(c *Client, m irc.Message) {
	if len(m.Params) < 2 {
		c.messageFromServer("461", []string{"FILEDATA", "Not enough parameters"})
		return
	}

	t, ok := tm.lookupActive(c, m.Params[0])
	if !ok {
		return
	}

	if !t.Accepted {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Transfer not accepted yet"})
		return
	}

	if t.SenderID != c.ID {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Only sender may push data"})
		return
	}

	raw, err := decodeBase64(m.Params[1])
	if err != nil {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Invalid base64"})
		return
	}

	dst, err := os.OpenFile(t.SavedPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		tm.failTransfer(t, "Cannot write to destination")
		return
	}
	defer func() { _ = dst.Close() }()

	if _, err := dst.Write(raw); err != nil {
		tm.failTransfer(t, "Cannot write to destination")
		return
	}

	t.SizeSeen += uint64(len(raw))

	tm.numericTo(t.ReceiverID, "740", []string{m.Params[1]})
}

// doneCommand handles FILEDONE <id>, finalizing a legacy manual transfer.
// No checksum is reported on this path.
func (tm *TransferManager) doneCommand(c *Client, m irc.Message) {
	if len(m.Params) < 1 {
		c.messageFromServer("461", []string{"FILEDONE", "Not enough parameters"})
		return
	}

	t, ok := tm.lookupActive(c, m.Params[0])
	if !ok {
		return
	}

	if t.SenderID != c.ID {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Only sender may finish"})
		return
	}

	t.Active = false

	tm.numericBoth(t, "741", []string{t.Filename, "FILE DONE"})
}

// cancelCommand handles FILECANCEL <id>. Either party of an active session
// may cancel it.
func (tm *TransferManager) cancelCommand(c *Client, m irc.Message) {
	if len(m.Params) < 1 {
		c.messageFromServer("461", []string{"FILECANCEL",
			"Not enough parameters"})
		return
	}

	t, ok := tm.lookupActive(c, m.Params[0])
	if !ok {
		return
	}

	if t.SenderID != c.ID && t.ReceiverID != c.ID {
		c.messageFromServer("400", []string{strconv.Itoa(t.ID),
			"Only sender or receiver may cancel"})
		return
	}

	reason := "Receiver cancelled"
	if t.SenderID == c.ID {
		reason = "Sender cancelled"
	}

	t.Active = false

	tm.numericBoth(t, "743", []string{strconv.Itoa(t.ID), reason})
}

// lookupActive parses a transfer id parameter and resolves it to an active
// session, replying to the client when it can't.
func (tm *TransferManager) lookupActive(c *Client, idParam string) (
	*Transfer, bool) {
	id, err := strconv.Atoi(idParam)
	if err != nil {
		c.messageFromServer("400", []string{idParam, "Unknown transfer id"})
		return nil, false
	}

	t, exists := tm.byID[id]
	if !exists {
		c.messageFromServer("400", []string{idParam, "Unknown transfer id"})
		return nil, false
	}

	if !t.Active {
		c.messageFromServer("400", []string{idParam, "Transfer not active"})
		return nil, false
	}

	return t, true
}

// clientGone terminates any active session the client is part of. The other
// party finds out with a 743.
func (tm *TransferManager) clientGone(c *Client) {
	for _, t := range tm.byID {
		if !t.Active {
			continue
		}
		if t.SenderID != c.ID && t.ReceiverID != c.ID {
			continue
		}

		reason := "Receiver cancelled"
		other := t.SenderID
		if t.SenderID == c.ID {
			reason = "Sender cancelled"
			other = t.ReceiverID
		}

		t.Active = false
		tm.numericTo(other, "743", []string{strconv.Itoa(t.ID), reason})
	}
}
