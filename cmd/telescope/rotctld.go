package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/w1xm/lx200_interface/coord"
	"github.com/w1xm/lx200_interface/mount"
)

// ListenRotctld serves the hamlib rotctld network protocol so existing
// rotator clients can point the mount in horizontal coordinates.
func (s *Server) ListenRotctld(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing rotctld socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("failed to accept: %v", err)
				continue
			}
			go s.handleRotctld(conn)
		}
	}()
	return nil
}

func (s *Server) handleRotctld(conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := scanner.Text()
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Split(cmd, " ")
			cmd = parts[0][2:]
			if len(parts) > 1 {
				args = parts[1:]
			}
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else {
			// Space after command is optional.
			if len(cmd) > 1 {
				args = strings.Fields(strings.TrimLeft(cmd[1:], " "))
			}
			cmd = string(cmd[0])
		}
		log.Printf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := -1
		switch cmd {
		case "1", "dump_caps":
			fmt.Fprintf(conn, `Model name: LX200
Mfg name: Meade
Rot type: Az-El
Min Azimuth: -180.00
Max Azimuth: 360.00
Min Elevation: 0.00
Max Elevation: 90.00
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: Y
Can Reset: N
Can Move: Y
Can get Info: N
`)
			rprt = 0
		case "S", "stop":
			extended = true // always print RPRT
			s.mu.Lock()
			tel := s.tel
			s.mu.Unlock()
			tel.AbortSlew()
			if err := tel.StopMoveAll(); err != nil {
				log.Printf("stop: %v", err)
				break
			}
			rprt = 0
		case "P", "set_pos":
			extended = true // always print RPRT
			if len(args) != 2 {
				rprt = -22
				break
			}
			az, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				rprt = -22
				break
			}
			el, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				rprt = -22
				break
			}
			if az < 0 {
				az += 360
			}
			s.mu.Lock()
			tel := s.tel
			s.mu.Unlock()
			pos := coord.Hor(coord.FromDegrees(el), coord.FromDegrees(az))
			go func() {
				if err := tel.SlewToHorizontal(pos); err != nil {
					log.Printf("slew to %v: %v", pos, err)
				}
			}()
			rprt = 0
		case "M", "move":
			extended = true // always print RPRT
			if len(args) != 2 {
				rprt = -22
				break
			}
			dir, err := strconv.Atoi(args[0])
			if err != nil {
				rprt = -22
				break
			}
			// The speed argument is accepted but ignored; the mount
			// moves at its configured slew rate.
			if _, err := strconv.Atoi(args[1]); err != nil {
				rprt = -22
				break
			}
			var direction string
			switch dir {
			case 2: // Up
				direction = "NORTH"
			case 4: // Down
				direction = "SOUTH"
			case 8: // Left
				direction = "EAST"
			case 16: // Right
				direction = "WEST"
			default:
				rprt = -22
			}
			if direction == "" {
				break
			}
			s.mu.Lock()
			tel := s.tel
			s.mu.Unlock()
			m, ok := tel.(mount.Mover)
			if !ok {
				break
			}
			if err := m.StartMove(direction); err != nil {
				log.Printf("start move %s: %v", direction, err)
				break
			}
			rprt = 0
		case "K", "park":
			extended = true // always print RPRT
			s.mu.Lock()
			tel := s.tel
			s.mu.Unlock()
			p, ok := tel.(mount.Parker)
			if !ok {
				break
			}
			go func() {
				if err := p.Park(); err != nil {
					log.Printf("park: %v", err)
				}
			}()
			rprt = 0
		case "p", "get_pos":
			s.statusMu.RLock()
			status := s.status
			s.statusMu.RUnlock()
			el, az := status.HorizontalPosition()
			if az > 180 {
				az -= 360
			}
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", az, el)
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", az, el)
			}
			rprt = 0
		}
		if extended || rprt != 0 {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}
