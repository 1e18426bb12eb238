package server

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/stonehall/stonehall/pkg/auth"
	"github.com/stonehall/stonehall/pkg/chat"
	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/protocol"
)

// mc18Handler drives the four-state automaton of the 1.8 protocol:
// handshake, status, login and play.
type mc18Handler struct {
	srv  *Server
	conn *Connection

	state  int
	player *Player

	username    string
	vtoken      [4]byte
	vtokenSet   bool
	encResponse bool
}

type mc18PacketFn func(h *mc18Handler, r *protocol.Reader) error

// Per-state opcode tables. A nil entry inside the table is silently
// ignored; an opcode past the end of the table closes the connection.
var (
	mc18HandshakeTable = []mc18PacketFn{
		(*mc18Handler).handleHandshake,
	}
	mc18StatusTable = []mc18PacketFn{
		(*mc18Handler).handleStatusRequest,
		(*mc18Handler).handleStatusPing,
	}
	mc18LoginTable = []mc18PacketFn{
		(*mc18Handler).handleLoginStart,
		(*mc18Handler).handleEncryptionResponse,
	}
	mc18PlayTable = []mc18PacketFn{
		0x00: (*mc18Handler).handleKeepAlive,
		0x01: (*mc18Handler).handleChat,
		0x03: (*mc18Handler).handlePlayerFlags,
		0x04: (*mc18Handler).handlePlayerPosition,
		0x05: (*mc18Handler).handlePlayerLook,
		0x06: (*mc18Handler).handlePlayerPositionAndLook,
		0x07: (*mc18Handler).handlePlayerDigging,
		0x08: (*mc18Handler).handleBlockPlacement,
		0x09: (*mc18Handler).handleHeldItemChange,
		0x0D: (*mc18Handler).handleCloseWindow,
		0x0E: (*mc18Handler).handleClickWindow,
		0x10: (*mc18Handler).handleCreativeAction,
		0x17: nil,
	}
)

func (h *mc18Handler) SetConnection(c *Connection) { h.conn = c }

func (h *mc18Handler) table() []mc18PacketFn {
	switch h.state {
	case protocol.StateStatus:
		return mc18StatusTable
	case protocol.StateLogin:
		return mc18LoginTable
	case protocol.StatePlay:
		return mc18PlayTable
	default:
		return mc18HandshakeTable
	}
}

// HandlePacket dispatches one inbound packet through the current
// state's opcode table. A handler either succeeds fully or the
// connection is closed; partial state changes are forbidden.
func (h *mc18Handler) HandlePacket(r *protocol.Reader) {
	opcode, err := r.VarInt()
	if err != nil {
		h.violation(err)
		return
	}

	table := h.table()
	if opcode < 0 || int(opcode) >= len(table) {
		h.violation(fmt.Errorf("opcode 0x%02X out of range for state %d", opcode, h.state))
		return
	}
	fn := table[opcode]
	if fn == nil {
		return
	}
	if err := fn(h, r); err != nil {
		h.violation(err)
	}
}

func (h *mc18Handler) violation(err error) {
	h.conn.log.Warn().Err(err).Int("state", h.state).Msg("protocol violation")
	h.conn.Disconnect()
}

func (h *mc18Handler) Tick() {}

func (h *mc18Handler) Disconnected() {
	if h.player != nil {
		h.srv.removePlayer(h.player)
		h.player = nil
	}
}

// --- handshake ---

func (h *mc18Handler) handleHandshake(r *protocol.Reader) error {
	version, err := r.VarInt()
	if err != nil {
		return err
	}
	if _, err := r.String(); err != nil { // server address
		return err
	}
	if _, err := r.Uint16(); err != nil { // server port
		return err
	}
	next, err := r.VarInt()
	if err != nil {
		return err
	}

	if version != protocol.ProtocolVersion {
		// wrong version: close without a reply
		h.conn.Disconnect()
		return nil
	}
	switch next {
	case protocol.StateStatus:
		h.state = protocol.StateStatus
	case protocol.StateLogin:
		h.state = protocol.StateLogin
	default:
		return fmt.Errorf("bad next state %d", next)
	}
	return nil
}

// --- status ---

func (h *mc18Handler) handleStatusRequest(r *protocol.Reader) error {
	h.conn.Send(h.builder().MakeStatusResponse(h.srv.StatusJSON()))
	return nil
}

// handleStatusPing echoes the payload; the ping terminates the status
// exchange, so the pong carries the post-send disconnect flag.
func (h *mc18Handler) handleStatusPing(r *protocol.Reader) error {
	payload, err := r.Int64()
	if err != nil {
		return err
	}
	h.conn.SendDisconnect(h.builder().MakeStatusPong(payload))
	return nil
}

// --- login ---

func (h *mc18Handler) handleLoginStart(r *protocol.Reader) error {
	username, err := r.String()
	if err != nil {
		return err
	}
	if username == "" || len(username) > 16 {
		return fmt.Errorf("bad username %q", username)
	}
	h.username = username

	if h.srv.PlayerCount() >= h.srv.cfg.General.MaxPlayers {
		h.conn.SendDisconnect(h.builder().MakeLoginDisconnect(
			chat.Disconnect("The server is full")))
		return nil
	}

	if !h.srv.cfg.Net.Encryption {
		h.finishLogin(h.srv.LookupUUID(username))
		return nil
	}

	if _, err := rand.Read(h.vtoken[:]); err != nil {
		return err
	}
	h.vtokenSet = true
	h.conn.Send(h.builder().MakeEncryptionRequest("", h.srv.pubDER, h.vtoken[:]))
	return nil
}

func (h *mc18Handler) handleEncryptionResponse(r *protocol.Reader) error {
	if !h.vtokenSet || h.encResponse {
		return fmt.Errorf("unexpected encryption response")
	}
	h.encResponse = true

	ssLen, err := r.VarInt()
	if err != nil {
		return err
	}
	if ssLen < 0 || ssLen > 256 {
		return fmt.Errorf("bad shared secret length %d", ssLen)
	}
	ssEnc, err := r.Bytes(int(ssLen))
	if err != nil {
		return err
	}
	vtLen, err := r.VarInt()
	if err != nil {
		return err
	}
	if vtLen < 0 || vtLen > 256 {
		return fmt.Errorf("bad verify token length %d", vtLen)
	}
	vtEnc, err := r.Bytes(int(vtLen))
	if err != nil {
		return err
	}

	vtoken, err := rsa.DecryptPKCS1v15(rand.Reader, h.srv.key, vtEnc)
	if err != nil {
		return fmt.Errorf("verify token decrypt: %w", err)
	}
	if len(vtoken) != len(h.vtoken) {
		return fmt.Errorf("verify token length mismatch")
	}
	for i := range vtoken {
		if vtoken[i] != h.vtoken[i] {
			return fmt.Errorf("verify token mismatch")
		}
	}

	secret, err := rsa.DecryptPKCS1v15(rand.Reader, h.srv.key, ssEnc)
	if err != nil {
		return fmt.Errorf("shared secret decrypt: %w", err)
	}
	if len(secret) != protocol.SharedSecretLen {
		return fmt.Errorf("shared secret length %d", len(secret))
	}

	aes := h.conn.aesTransformer()
	if aes == nil {
		return fmt.Errorf("no encryption transformer")
	}
	if err := aes.Setup(secret); err != nil {
		return err
	}
	if err := aes.Start(); err != nil {
		return err
	}

	hash := auth.ServerHash("", secret, h.srv.pubDER)
	username := h.username
	h.srv.auth.Check(h.srv.pool, username, hash, func(res auth.Result) {
		h.conn.RunSequenced(func() {
			if res.Err != nil {
				h.conn.SendDisconnect(h.builder().MakeLoginDisconnect(
					chat.Disconnect("Failed to verify username")))
				return
			}
			h.srv.CacheUUID(username, res.Profile.ID)
			h.finishLogin(res.Profile.ID)
		})
	})
	return nil
}

// finishLogin completes the login state: success packet, the switch to
// play, the join sequence and compression activation.
func (h *mc18Handler) finishLogin(id [16]byte) {
	h.conn.Send(h.builder().MakeLoginSuccess(id, h.username))
	h.state = protocol.StatePlay

	p := h.srv.newPlayer(h.conn, id, h.username)
	h.player = p
	h.conn.SetPlayer(p)

	h.conn.Send(h.builder().MakeJoinGame(p.eid, p.gameMode, h.srv.cfg.General.MaxPlayers))

	if th := h.srv.cfg.Net.Compression.Threshold; th > 0 {
		h.conn.Send(h.builder().MakeSetCompressionPlay(th))
		if z := h.conn.zlibTransformer(); z != nil {
			z.Setup(th, h.srv.cfg.Net.Compression.Level)
			if err := z.Start(); err != nil {
				h.conn.log.Error().Err(err).Msg("compression start failed")
				h.conn.Disconnect()
				return
			}
		}
	}

	p.Login(h.srv.mainWorld)
}

// --- play ---

func (h *mc18Handler) handleKeepAlive(r *protocol.Reader) error {
	id, err := r.VarInt()
	if err != nil {
		return err
	}
	h.player.HandleKeepAlive(id)
	return nil
}

func (h *mc18Handler) handleChat(r *protocol.Reader) error {
	msg, err := r.String()
	if err != nil {
		return err
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if strings.HasPrefix(msg, "/") {
		h.srv.DispatchCommand(h.player, msg)
		return nil
	}
	h.srv.log.Info().Str("username", h.player.username).Str("msg", msg).Msg("chat")
	h.srv.BroadcastChat(chat.Message{
		Extra: []chat.Message{
			chat.Colored("<"+h.player.username+"> ", "white"),
			chat.Text(msg),
		},
	})
	return nil
}

func (h *mc18Handler) handlePlayerFlags(r *protocol.Reader) error {
	onGround, err := r.Bool()
	if err != nil {
		return err
	}
	h.player.UpdateGround(onGround)
	return nil
}

func (h *mc18Handler) handlePlayerPosition(r *protocol.Reader) error {
	x, err := r.Float64()
	if err != nil {
		return err
	}
	y, err := r.Float64()
	if err != nil {
		return err
	}
	z, err := r.Float64()
	if err != nil {
		return err
	}
	onGround, err := r.Bool()
	if err != nil {
		return err
	}
	h.player.UpdatePosition(x, y, z, h.player.Yaw(), h.player.Pitch(), onGround)
	return nil
}

func (h *mc18Handler) handlePlayerLook(r *protocol.Reader) error {
	yaw, err := r.Float32()
	if err != nil {
		return err
	}
	pitch, err := r.Float32()
	if err != nil {
		return err
	}
	onGround, err := r.Bool()
	if err != nil {
		return err
	}
	x, y, z := h.player.Position()
	h.player.UpdatePosition(x, y, z, yaw, pitch, onGround)
	return nil
}

func (h *mc18Handler) handlePlayerPositionAndLook(r *protocol.Reader) error {
	x, err := r.Float64()
	if err != nil {
		return err
	}
	y, err := r.Float64()
	if err != nil {
		return err
	}
	z, err := r.Float64()
	if err != nil {
		return err
	}
	yaw, err := r.Float32()
	if err != nil {
		return err
	}
	pitch, err := r.Float32()
	if err != nil {
		return err
	}
	onGround, err := r.Bool()
	if err != nil {
		return err
	}
	h.player.UpdatePosition(x, y, z, yaw, pitch, onGround)
	return nil
}

func (h *mc18Handler) handlePlayerDigging(r *protocol.Reader) error {
	status, err := r.Byte()
	if err != nil {
		return err
	}
	x, y, z, err := r.Position()
	if err != nil {
		return err
	}
	if _, err := r.Byte(); err != nil { // face
		return err
	}

	finished := status == 2
	instant := status == 0 && h.player.gameMode == GameModeCreative
	if finished || instant {
		h.player.World().SetBlock(x, y, z, game.BlockAir, 0)
	}
	return nil
}

func (h *mc18Handler) handleBlockPlacement(r *protocol.Reader) error {
	x, y, z, err := r.Position()
	if err != nil {
		return err
	}
	face, err := r.Byte()
	if err != nil {
		return err
	}
	itemID, _, damage, err := r.Slot()
	if err != nil {
		return err
	}
	// cursor position, unused
	for i := 0; i < 3; i++ {
		if _, err := r.Byte(); err != nil {
			return err
		}
	}

	// (-1, 255, -1) means "use item", not a placement
	if x == -1 && y == 255 && z == -1 {
		return nil
	}
	if itemID <= 0 || itemID > 255 {
		h.player.ResyncHeldSlot()
		return nil
	}

	tx, ty, tz := faceOffset(x, y, z, face)
	if ty < 0 || ty >= 256 {
		h.player.ResyncHeldSlot()
		return nil
	}
	existing, _ := h.player.World().GetBlock(tx, ty, tz)
	if existing != game.BlockAir {
		h.player.ResyncHeldSlot()
		return nil
	}

	h.player.World().SetBlock(tx, ty, tz, uint16(itemID), byte(damage&0x0F))
	h.player.ConsumeHeldItem()
	return nil
}

func (h *mc18Handler) handleHeldItemChange(r *protocol.Reader) error {
	slot, err := r.Int16()
	if err != nil {
		return err
	}
	if slot < 0 || slot > 8 {
		return fmt.Errorf("held slot %d out of range", slot)
	}
	h.player.SetHeldSlot(slot)
	return nil
}

func (h *mc18Handler) handleCloseWindow(r *protocol.Reader) error {
	if _, err := r.Byte(); err != nil { // window id
		return err
	}
	h.player.CloseWindow()
	return nil
}

// handleClickWindow parses and acknowledges a window click. The full
// click semantics are not modelled; the client is resynced to the
// server's view of the window after every click.
func (h *mc18Handler) handleClickWindow(r *protocol.Reader) error {
	windowID, err := r.Byte()
	if err != nil {
		return err
	}
	if _, err := r.Int16(); err != nil { // slot
		return err
	}
	if _, err := r.Byte(); err != nil { // button
		return err
	}
	action, err := r.Int16()
	if err != nil {
		return err
	}
	if _, err := r.Byte(); err != nil { // mode
		return err
	}
	if _, _, _, err := r.Slot(); err != nil {
		return err
	}

	h.conn.Send(h.builder().MakeConfirmTransaction(windowID, action, true))
	h.conn.Send(h.builder().MakeWindowItems(h.player.Window()))
	return nil
}

func (h *mc18Handler) handleCreativeAction(r *protocol.Reader) error {
	slot, err := r.Int16()
	if err != nil {
		return err
	}
	itemID, count, damage, err := r.Slot()
	if err != nil {
		return err
	}
	if h.player.gameMode != GameModeCreative {
		return nil
	}
	if slot < 0 || int(slot) >= game.PlayerWindowSize {
		return nil
	}
	h.player.SetWindowSlot(int(slot), game.SlotFromWire(itemID, count, damage))
	return nil
}

func (h *mc18Handler) builder() *Builder {
	return h.conn.Protocol().Builder
}

// faceOffset shifts a clicked block position by the clicked face.
func faceOffset(x, y, z int32, face byte) (int32, int32, int32) {
	switch face {
	case 0:
		return x, y - 1, z
	case 1:
		return x, y + 1, z
	case 2:
		return x, y, z - 1
	case 3:
		return x, y, z + 1
	case 4:
		return x - 1, y, z
	case 5:
		return x + 1, y, z
	}
	return x, y, z
}
