package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/w1xm/lx200_interface/coord"
	"github.com/w1xm/lx200_interface/lx200"
	"github.com/w1xm/lx200_interface/mount"
)

type Server struct {
	mu  sync.Mutex
	tel mount.Mount

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     mount.Status
}

func NewServer() *Server {
	s := &Server{status: lx200.Status{}}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type Command struct {
	Command string `json:"command"`
	// RA is hours; Dec, Alt, and Az are degrees.
	RA        float64 `json:"ra"`
	Dec       float64 `json:"dec"`
	Alt       float64 `json:"alt"`
	Az        float64 `json:"az"`
	Direction string  `json:"direction"`
	Arcsec    float64 `json:"arcsec"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			s.dispatch(msg)
		}
	}()

	// Wake the push loop when the connection goes away.
	go func() {
		<-ctx.Done()
		s.statusCond.Broadcast()
	}()

	send := func(status mount.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		log.Print(err)
		return
	}

	for {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
	}
}

func (s *Server) dispatch(msg Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tel := s.tel
	if tel == nil {
		return
	}
	switch msg.Command {
	case "slew_equatorial":
		pos := coord.Equ(coord.FromHours(msg.RA), coord.FromDegrees(msg.Dec))
		go func() {
			if err := tel.SlewToEquatorial(pos); err != nil {
				log.Printf("slew to %v: %v", pos, err)
			}
		}()
	case "slew_horizontal":
		pos := coord.Hor(coord.FromDegrees(msg.Alt), coord.FromDegrees(msg.Az))
		go func() {
			if err := tel.SlewToHorizontal(pos); err != nil {
				log.Printf("slew to %v: %v", pos, err)
			}
		}()
	case "abort":
		tel.AbortSlew()
	case "stop":
		if err := tel.StopMoveAll(); err != nil {
			log.Printf("stop: %v", err)
		}
	case "move":
		m, ok := tel.(mount.Mover)
		if !ok {
			log.Print("mount cannot move")
			return
		}
		go func() {
			if err := m.Move(msg.Direction, msg.Arcsec); err != nil {
				log.Printf("move %s %.1f: %v", msg.Direction, msg.Arcsec, err)
			}
		}()
	case "start_move":
		if m, ok := tel.(mount.Mover); ok {
			if err := m.StartMove(msg.Direction); err != nil {
				log.Printf("start move %s: %v", msg.Direction, err)
			}
		}
	case "stop_move":
		if m, ok := tel.(mount.Mover); ok {
			if err := m.StopMove(msg.Direction); err != nil {
				log.Printf("stop move %s: %v", msg.Direction, err)
			}
		}
	case "start_tracking":
		if tr, ok := tel.(mount.Tracker); ok {
			if err := tr.StartTracking(); err != nil {
				log.Printf("start tracking: %v", err)
			}
		}
	case "stop_tracking":
		if tr, ok := tel.(mount.Tracker); ok {
			if err := tr.StopTracking(); err != nil {
				log.Printf("stop tracking: %v", err)
			}
		}
	case "park":
		p, ok := tel.(mount.Parker)
		if !ok {
			log.Print("mount cannot park")
			return
		}
		go func() {
			if err := p.Park(); err != nil {
				log.Printf("park: %v", err)
			}
		}()
	case "unpark":
		p, ok := tel.(mount.Parker)
		if !ok {
			return
		}
		go func() {
			if err := p.Unpark(); err != nil {
				log.Printf("unpark: %v", err)
			}
		}()
	case "sync":
		if sy, ok := tel.(mount.Syncer); ok {
			pos := coord.Equ(coord.FromHours(msg.RA), coord.FromDegrees(msg.Dec))
			if err := sy.Sync(pos); err != nil {
				log.Printf("sync to %v: %v", pos, err)
			}
		}
	case "calibrate":
		c, ok := tel.(mount.Calibrator)
		if !ok {
			return
		}
		go func() {
			if err := c.CalibrateMoves(); err != nil {
				log.Printf("calibrate: %v", err)
			}
		}()
	default:
		log.Printf("unknown command %q", msg.Command)
	}
}

func (s *Server) statusCallback(status mount.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusCond.Broadcast()
}
