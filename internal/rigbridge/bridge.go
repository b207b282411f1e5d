// Package rigbridge serves the renderer-facing WebSocket endpoint and
// materializes a connected renderer's model as a rig the engine can drive.
package rigbridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/num/quat"

	"github.com/mienlabs/mien-core/internal/rig"
)

// AttachMessage is the first message a renderer sends after connecting. It
// describes the model: rest orientations per bone as [w,x,y,z] and the
// blendshape channels the model exposes. Unknown names are ignored so
// renderers with richer rigs keep working.
type AttachMessage struct {
	Type        string                `json:"type"`
	Bones       map[string][4]float64 `json:"bones"`
	Blendshapes []string              `json:"blendshapes"`
}

// FrameMessage carries one frame of bone and blendshape writes back to the
// renderer. Only channels touched since the previous frame are included.
type FrameMessage struct {
	Type        string                `json:"type"`
	DT          float64               `json:"dt"`
	Bones       map[string][4]float64 `json:"bones,omitempty"`
	Blendshapes map[string]float64    `json:"blendshapes,omitempty"`
}

// Bridge upgrades renderer connections and owns the active remote rig. One
// renderer at a time; a new connection displaces the previous one.
type Bridge struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	active *RemoteRig

	onAttach func(r *RemoteRig)
	onDetach func()
}

// New builds a bridge. allowOrigin restricts the WebSocket origin check; an
// empty value accepts any origin, which is intended for same-host renderers.
func New(allowOrigin string, log *slog.Logger) *Bridge {
	b := &Bridge{
		log: log.With(slog.String("component", "rigbridge")),
	}
	b.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowOrigin
		},
	}
	return b
}

// OnAttach registers the callback invoked with a freshly attached rig. The
// session uses it to build a new engine; engines never outlive their rig.
func (b *Bridge) OnAttach(fn func(r *RemoteRig)) { b.onAttach = fn }

// OnDetach registers the callback invoked when the renderer disconnects.
func (b *Bridge) OnDetach(fn func()) { b.onDetach = fn }

// ServeHTTP upgrades the connection, waits for the attach message, then
// blocks reading until the renderer disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	var attach AttachMessage
	if err := conn.ReadJSON(&attach); err != nil || attach.Type != "attach" {
		b.log.Warn("renderer did not send attach message")
		conn.Close()
		return
	}

	remote := newRemoteRig(b, attach)

	b.mu.Lock()
	if b.conn != nil {
		// Displace the previous renderer: its rig must stop accepting
		// writes now, not when its read loop notices the closed socket.
		b.conn.Close()
		b.active.detach()
	}
	b.conn = conn
	b.active = remote
	b.mu.Unlock()

	b.log.Info("renderer attached",
		slog.Int("bones", len(attach.Bones)),
		slog.Int("blendshapes", len(attach.Blendshapes)))
	if b.onAttach != nil {
		b.onAttach(remote)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		b.active.detach()
		b.active = nil
		b.mu.Unlock()
		b.log.Info("renderer detached")
		if b.onDetach != nil {
			b.onDetach()
		}
	} else {
		b.mu.Unlock()
	}
	conn.Close()
}

// Attached reports whether a renderer is currently connected.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *Bridge) send(msg FrameMessage) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		b.log.Debug("frame send failed", slog.String("error", err.Error()))
	}
}

// RemoteRig is the engine-facing view of a connected renderer's model. Bone
// and blendshape writes accumulate locally and flush as one frame message per
// resolution pass; writes made after the pass land in the next frame.
// Orientation reads return the last value written this side, which is the
// rest pose until the engine writes.
type RemoteRig struct {
	bridge *Bridge

	mu       sync.Mutex
	detached bool

	present      [rig.NumBones]bool
	orientations [rig.NumBones]quat.Number
	exposed      rig.BlendshapeSet
	weights      [rig.NumBlendshapes]float64

	dirtyBones  [rig.NumBones]bool
	dirtyShapes [rig.NumBlendshapes]bool
}

func newRemoteRig(b *Bridge, attach AttachMessage) *RemoteRig {
	r := &RemoteRig{bridge: b}
	for name, q := range attach.Bones {
		bone, ok := rig.ParseBone(name)
		if !ok {
			continue
		}
		r.present[bone] = true
		r.orientations[bone] = quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
	}
	shapes := make([]rig.Blendshape, 0, len(attach.Blendshapes))
	for _, name := range attach.Blendshapes {
		if s, ok := rig.ParseBlendshape(name); ok {
			shapes = append(shapes, s)
		}
	}
	r.exposed = rig.NewBlendshapeSet(shapes...)
	return r
}

func (r *RemoteRig) detach() {
	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}

// Detached reports whether the renderer behind this rig has gone away. Every
// mutation on a detached rig is a no-op.
func (r *RemoteRig) Detached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detached
}

func (r *RemoteRig) BoneOrientation(b rig.Bone) (quat.Number, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.present[b] {
		return quat.Number{Real: 1}, false
	}
	return r.orientations[b], true
}

func (r *RemoteRig) SetBoneOrientation(b rig.Bone, q quat.Number) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached || !r.present[b] {
		return
	}
	r.orientations[b] = q
	r.dirtyBones[b] = true
}

func (r *RemoteRig) SetBlendshape(b rig.Blendshape, weight float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached || !r.exposed.Has(b) {
		return
	}
	r.weights[b] = weight
	r.dirtyShapes[b] = true
}

func (r *RemoteRig) Blendshapes() rig.BlendshapeSet {
	return r.exposed
}

// ResolvePhysicsAndRig flushes the accumulated writes as one frame message.
// Spring-bone physics runs renderer-side on receipt, so the orientations held
// here keep the engine's last written values.
func (r *RemoteRig) ResolvePhysicsAndRig(dt float64) {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return
	}
	msg := FrameMessage{Type: "frame", DT: dt}
	for b := rig.Bone(0); b < rig.NumBones; b++ {
		if !r.dirtyBones[b] {
			continue
		}
		if msg.Bones == nil {
			msg.Bones = make(map[string][4]float64)
		}
		q := r.orientations[b]
		msg.Bones[b.String()] = [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}
		r.dirtyBones[b] = false
	}
	for s := rig.Blendshape(0); s < rig.NumBlendshapes; s++ {
		if !r.dirtyShapes[s] {
			continue
		}
		if msg.Blendshapes == nil {
			msg.Blendshapes = make(map[string]float64)
		}
		msg.Blendshapes[s.String()] = r.weights[s]
		r.dirtyShapes[s] = false
	}
	r.mu.Unlock()

	if msg.Bones != nil || msg.Blendshapes != nil {
		r.bridge.send(msg)
	}
}
