package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/nurture/internal/config"
	"github.com/keshon/nurture/internal/persona"
	"github.com/keshon/nurture/internal/storage"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	layer := storage.NewLayer(backend, cfg.RelationshipID)
	defer layer.Close()

	mgr := persona.NewPersonalityStateManager()
	snap, err := layer.Load(ctx)
	if err != nil {
		log.Printf("[CLI] load failed, starting from defaults: %v", err)
	}
	if err := mgr.RestoreSnapshot(snap); err != nil {
		log.Printf("[CLI] snapshot rejected, starting from defaults: %v", err)
	}

	queue := persona.NewProcessor(mgr)

	fmt.Println("relationship shell — type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "state":
			printState(mgr.CurrentState(time.Now()))
			printModifiers(mgr.Modifiers(time.Now()))
		case "save":
			if err := layer.Save(ctx, mgr.Snapshot(time.Now())); err != nil {
				fmt.Println("save:", err)
			} else {
				fmt.Println("saved")
			}
		case "load":
			snap, err := layer.Load(ctx)
			if err != nil {
				fmt.Println("load:", err)
				continue
			}
			if err := mgr.RestoreSnapshot(snap); err != nil {
				fmt.Println("restore:", err)
				continue
			}
			fmt.Println("loaded snapshot from", snap.SavedAt.Format(time.RFC3339))
		case "act":
			action, err := parseAction(fields[1:])
			if err != nil {
				fmt.Println("act:", err)
				continue
			}
			if err := queue.Enqueue(action); err != nil {
				fmt.Println("act:", err)
				continue
			}
			queue.Drain()
			printState(mgr.CurrentState(time.Now()))
			printModifiers(mgr.Modifiers(time.Now()))
		default:
			fmt.Println("unknown command, try 'help'")
		}
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == "redis" {
		return storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return storage.NewFileBackend(ctx, cfg.StoragePath)
}

// parseAction reads "act <type> [public|private] [valence]".
func parseAction(args []string) (*persona.PlayerAction, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: act <type> [public|private] [valence]")
	}
	a := &persona.PlayerAction{
		Type:      persona.ActionType(args[0]),
		Context:   persona.ContextPrivate,
		Timestamp: time.Now(),
	}
	for _, arg := range args[1:] {
		switch arg {
		case "public":
			a.Context = persona.ContextPublic
		case "private":
			a.Context = persona.ContextPrivate
		default:
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("bad argument %q", arg)
			}
			a.Valence = v
		}
	}
	if a.Valence == 0 {
		a.Valence = defaultValence(a.Type)
	}
	return a, nil
}

// defaultValence gives each action kind a sensible sign when none is typed.
func defaultValence(t persona.ActionType) float64 {
	switch t {
	case persona.ActionPublicContradiction, persona.ActionConflictAvoid,
		persona.ActionControlTaking, persona.ActionParentingAbsent,
		persona.ActionStressDismissed:
		return -0.5
	case persona.ActionPrivateCorrection:
		return -0.3
	default:
		return 0.5
	}
}

func printState(s *persona.PersonalityState) {
	fmt.Printf("trust=%.2f resentment=%.2f safety=%.2f unity=%.2f withdrawn=%v (%s) tone=%s\n",
		s.TrustScore, s.ResentmentScore, s.EmotionalSafety, s.ParentingUnity,
		s.IsWithdrawn, s.WithdrawalSeverity, s.Tone)
	if len(s.RecentPatterns) > 0 {
		fmt.Printf("patterns: %v\n", s.RecentPatterns)
	}
	if len(s.DominantEmotions) > 0 {
		fmt.Printf("emotions: %v\n", s.DominantEmotions)
	}
}

func printModifiers(m *persona.ResponseModifiers) {
	fmt.Printf("length=%.2f initiation=%.2f cooperation=%.2f vulnerability=%.2f bias=%.2f\n",
		m.ResponseLengthMultiplier, m.InitiationProbability, m.CooperationLevel,
		m.EmotionalVulnerability, m.InterpretationBias)
}

func printHelp() {
	fmt.Println(`commands:
  act <type> [public|private] [valence]   process one action
  state                                   show current state and modifiers
  save                                    persist a snapshot
  load                                    reload the persisted snapshot
  quit                                    exit

action types: public_support public_contradiction private_correction
  conflict_engage conflict_avoid control_taking supportive_autonomy
  parenting_present parenting_absent empathy_shown stress_acknowledged
  stress_dismissed apology initiation_response`)
}
