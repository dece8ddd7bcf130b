package websocket

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/editor"
	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/interaction"
)

type ackInvoker func(err error, payload map[string]any)

type (
	JoinOptions struct {
		Mobile bool `json:"mobile"`
	}

	PointerMessage struct {
		Type string          `json:"type"`
		X    float64         `json:"x"`
		Y    float64         `json:"y"`
		Hit  interaction.Hit `json:"hit"`
	}

	PaletteTouchMessage struct {
		Phase string     `json:"phase"`
		X     float64    `json:"x"`
		Y     float64    `json:"y"`
		Asset core.Asset `json:"asset"`
	}

	LongPressMessage struct {
		Phase string `json:"phase"`
	}

	DragOverMessage struct {
		Over bool `json:"over"`
	}

	DropMessage struct {
		Payload json.RawMessage `json:"payload"`
		X       float64         `json:"x"`
		Y       float64         `json:"y"`
	}
)

// session is the workspace a socket is attached to.
type session struct {
	workspaceID string
	unsubscribe func()
}

// Hub tracks which workspace each socket has joined.
type Hub struct {
	reg *editor.Registry

	mu       sync.Mutex
	sessions map[string]*session
}

func NewHub(reg *editor.Registry) *Hub {
	return &Hub{reg: reg, sessions: make(map[string]*session)}
}

// Join attaches clientID to a workspace and forwards workspace events to
// emit. A previous workspace of the same client is left first. The
// workspace must already exist.
func (h *Hub) Join(clientID, workspaceID string, opts JoinOptions, emit func(event string, payload any)) (*editor.Workspace, error) {
	h.Leave(clientID)

	ws, err := h.reg.Join(workspaceID, clientID, opts.Mobile)
	if err != nil {
		return nil, err
	}
	unsubscribe := ws.Subscribe(func(ev editor.Event) {
		switch ev.Type {
		case editor.EventState:
			emit(string(ev.Type), ev.State)
		case editor.EventNotification:
			emit(string(ev.Type), ev.Notification)
		case editor.EventExported:
			emit(string(ev.Type), ev.Export)
		}
	})

	h.mu.Lock()
	h.sessions[clientID] = &session{workspaceID: workspaceID, unsubscribe: unsubscribe}
	h.mu.Unlock()
	return ws, nil
}

// Leave detaches clientID from its workspace, if any.
func (h *Hub) Leave(clientID string) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	delete(h.sessions, clientID)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.unsubscribe()
	h.reg.Leave(s.workspaceID, clientID)
}

// Workspace returns the workspace clientID has joined.
func (h *Hub) Workspace(clientID string) (*editor.Workspace, error) {
	h.mu.Lock()
	s, ok := h.sessions[clientID]
	h.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("join a workspace first")
	}
	return h.reg.Get(s.workspaceID)
}

// Pointer applies a pointer or touch event to the joined workspace.
func (h *Hub) Pointer(clientID string, msg PointerMessage) error {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return err
	}

	p := geometry.Point{X: msg.X, Y: msg.Y}
	switch msg.Type {
	case "down":
		return ws.PointerDown(msg.Hit, p)
	case "move":
		return ws.PointerMove(p)
	case "up", "cancel":
		return ws.PointerUp()
	default:
		return fmt.Errorf("unknown pointer event %q", msg.Type)
	}
}

func (h *Hub) Key(clientID string, ev interaction.KeyEvent) (interaction.Command, error) {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return interaction.Command{}, err
	}
	return ws.Key(ev)
}

func (h *Hub) PaletteTouch(clientID string, msg PaletteTouchMessage) error {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return err
	}

	p := geometry.Point{X: msg.X, Y: msg.Y}
	switch msg.Phase {
	case "start":
		ws.PaletteTouchStart(clientID, msg.Asset, p)
	case "move":
		ws.PaletteTouchMove(clientID, p)
	case "end":
		_, _, err = ws.PaletteTouchEnd(clientID)
	default:
		return fmt.Errorf("unknown palette touch phase %q", msg.Phase)
	}
	return err
}

func (h *Hub) LongPress(clientID string, msg LongPressMessage) error {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return err
	}

	switch msg.Phase {
	case "start":
		ws.LongPressStart(clientID)
	case "cancel":
		ws.LongPressCancel(clientID)
	default:
		return fmt.Errorf("unknown long press phase %q", msg.Phase)
	}
	return nil
}

func (h *Hub) DragOver(clientID string, msg DragOverMessage) error {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return err
	}
	ws.DragOver(msg.Over)
	return nil
}

func (h *Hub) Drop(clientID string, msg DropMessage) error {
	ws, err := h.Workspace(clientID)
	if err != nil {
		return err
	}
	_, err = ws.Drop(msg.Payload, geometry.Point{X: msg.X, Y: msg.Y})
	return err
}

// corsOrigin builds the socket.io origin rule. Localhost is always allowed;
// "*" allows every origin.
func corsOrigin(origins []string) (origin any, credentials bool) {
	allowed := []any{localhostOrigin}
	for _, o := range origins {
		if o == "*" {
			return "*", false
		}
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	return allowed, true
}

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

func SetupSocketIO(reg *editor.Registry, origins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	origin, credentials := corsOrigin(origins)
	opts.SetCors(&types.Cors{
		Origin:      origin,
		Credentials: credentials,
	})
	srv := socketio.NewServer(nil, opts)
	hub := NewHub(reg)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := string(socket.Id())
		utils.Log().Printf("client %v connected\n", me)
		emit := func(event string, payload any) {
			_ = socket.Emit(event, payload)
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-workspace", func(datas ...any) {
			ack, args := extractAck(datas)
			if len(args) == 0 {
				err := fmt.Errorf("workspace id is required")
				respondWithAck(socket, ack, "join-workspace-ack", errorPayload(err), err)
				return
			}

			workspaceID, ok := args[0].(string)
			if !ok || workspaceID == "" {
				err := fmt.Errorf("invalid workspace id")
				respondWithAck(socket, ack, "join-workspace-ack", errorPayload(err), err)
				return
			}

			var joinOpts JoinOptions
			if len(args) > 1 {
				_ = decodeArg(args[1], &joinOpts)
			}

			ws, err := hub.Join(me, workspaceID, joinOpts, emit)
			if err != nil {
				respondWithAck(socket, ack, "join-workspace-ack", errorPayload(err), err)
				return
			}
			room := socketio.Room(workspaceID)
			socket.Join(room)
			utils.Log().Printf("Socket %v has joined %v\n", me, room)

			emit(string(editor.EventState), ws.State())
			respondWithAck(socket, ack, "join-workspace-ack", map[string]any{
				"status":       "ok",
				"workspace_id": workspaceID,
			}, nil)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("pointer", func(datas ...any) {
			var msg PointerMessage
			handleInput(socket, datas, "pointer-ack", &msg, func() error {
				return hub.Pointer(me, msg)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("key", func(datas ...any) {
			var ev interaction.KeyEvent
			handleInput(socket, datas, "key-ack", &ev, func() error {
				_, err := hub.Key(me, ev)
				return err
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("palette-touch", func(datas ...any) {
			var msg PaletteTouchMessage
			handleInput(socket, datas, "palette-touch-ack", &msg, func() error {
				return hub.PaletteTouch(me, msg)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("long-press", func(datas ...any) {
			var msg LongPressMessage
			handleInput(socket, datas, "long-press-ack", &msg, func() error {
				return hub.LongPress(me, msg)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("drag-over", func(datas ...any) {
			var msg DragOverMessage
			handleInput(socket, datas, "drag-over-ack", &msg, func() error {
				return hub.DragOver(me, msg)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("drop", func(datas ...any) {
			var msg DropMessage
			handleInput(socket, datas, "drop-ack", &msg, func() error {
				return hub.Drop(me, msg)
			})
		})

		socket.On("disconnecting", func(datas ...any) {
			utils.Log().Printf("disconnecting %v\n", me)
			hub.Leave(me)
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// handleInput decodes the first argument into target, runs apply and
// answers the optional ack.
func handleInput(socket *socketio.Socket, datas []any, ackEvent string, target any, apply func() error) {
	ack, args := extractAck(datas)
	if len(args) == 0 {
		err := fmt.Errorf("payload is required")
		respondWithAck(socket, ack, ackEvent, errorPayload(err), err)
		return
	}
	if err := decodeArg(args[0], target); err != nil {
		respondWithAck(socket, ack, ackEvent, errorPayload(err), err)
		return
	}
	if err := apply(); err != nil {
		logrus.WithField("client_id", socket.Id()).WithError(err).Debug("Input rejected")
		respondWithAck(socket, ack, ackEvent, errorPayload(err), err)
		return
	}
	if ack != nil {
		ack(nil, map[string]any{"status": "ok"})
	}
}

// decodeArg converts a decoded socket.io argument (maps, slices, numbers)
// or a JSON string into target.
func decodeArg(arg any, target any) error {
	var raw []byte
	switch v := arg.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return core.Wrap(core.CodeInputParse, err, "malformed payload")
		}
		raw = b
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return core.Wrap(core.CodeInputParse, err, "malformed payload")
	}
	return nil
}

func errorPayload(err error) map[string]any {
	payload := map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
	if code := core.GetCode(err); code != core.CodeUnknown {
		payload["code"] = string(code)
	}
	return payload
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		value.Call(buildAckArgs(typ, err, payload))
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		var argValue any
		switch {
		case numIn == 1 && err != nil:
			argValue = err
		case numIn == 1:
			argValue = payload
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		}
		args[i] = coerceValue(argValue, typ.In(i))
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(targetType):
		return rv
	case rv.Type().ConvertibleTo(targetType):
		return rv.Convert(targetType)
	case targetType.Kind() == reflect.Interface && (rv.Type().Implements(targetType) || targetType.NumMethod() == 0):
		return rv
	case targetType.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	if targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		if payload, ok := value.(map[string]any); ok {
			return convertMap(payload, targetType)
		}
	}

	return reflect.Zero(targetType)
}

func convertMap(source map[string]any, targetType reflect.Type) reflect.Value {
	result := reflect.MakeMapWithSize(targetType, len(source))
	for key, val := range source {
		keyValue := reflect.ValueOf(key).Convert(targetType.Key())
		valueValue := reflect.ValueOf(val)
		if !valueValue.Type().AssignableTo(targetType.Elem()) {
			if valueValue.Type().ConvertibleTo(targetType.Elem()) {
				valueValue = valueValue.Convert(targetType.Elem())
			} else if targetType.Elem().Kind() != reflect.Interface {
				continue
			}
		}
		result.SetMapIndex(keyValue, valueValue)
	}
	return result
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}

	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
