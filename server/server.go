package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/buildkite/shellwords"
	"github.com/embermud/ember"
	"github.com/embermud/ember/game"
	"github.com/embermud/ember/storage"
	"github.com/embermud/ember/structs"
	goccy "github.com/goccy/go-json"
	"github.com/pkg/errors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Dir holds the databases, the asset files and the log.
	Dir string
	// ConfigPath optionally points at a world config JSON file.
	ConfigPath string
}

func DefaultConfig() Config {
	return Config{
		Dir: filepath.Join(os.Getenv("HOME"), ".ember"),
	}
}

type Server struct {
	cfg Config
}

func New(config Config) (*Server, error) {
	if err := os.MkdirAll(config.Dir, 0700); err != nil {
		return nil, ember.WithStack(err)
	}
	return &Server{cfg: config}, nil
}

// loadJSON reads a JSON asset file into result. A missing file is not an
// error; the registry just stays empty.
func loadJSON(path string, result any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return ember.WithStack(err)
	}
	return ember.WithStack(goccy.Unmarshal(b, result))
}

func (s *Server) loadAssets() (*structs.ItemTypes, *structs.MonsterTypes, error) {
	itemDefs := []*structs.ItemType{}
	if err := loadJSON(filepath.Join(s.cfg.Dir, "items.json"), &itemDefs); err != nil {
		return nil, nil, ember.WithStack(err)
	}
	itemTypes := structs.NewItemTypes()
	for _, def := range itemDefs {
		itemTypes.Register(def)
	}

	monsterDefs := []*structs.MonsterType{}
	if err := loadJSON(filepath.Join(s.cfg.Dir, "monsters.json"), &monsterDefs); err != nil {
		return nil, nil, ember.WithStack(err)
	}
	monsterTypes := structs.NewMonsterTypes()
	for _, def := range monsterDefs {
		monsterTypes.Register(def)
	}
	return itemTypes, monsterTypes, nil
}

func (s *Server) Start(ctx context.Context) error {
	worldCfg := structs.DefaultWorldConfig()
	if s.cfg.ConfigPath != "" {
		var err error
		if worldCfg, err = structs.LoadWorldConfig(s.cfg.ConfigPath); err != nil {
			return ember.WithStack(err)
		}
	}
	if worldCfg.LogPath != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   worldCfg.LogPath,
			MaxSize:    worldCfg.LogMaxSizeMB,
			MaxBackups: worldCfg.LogMaxBackups,
		})
	}

	store, err := storage.New(ctx, s.cfg.Dir)
	if err != nil {
		return ember.WithStack(err)
	}
	defer store.Close()

	itemTypes, monsterTypes, err := s.loadAssets()
	if err != nil {
		return ember.WithStack(err)
	}

	world := NewWorld()
	g, err := game.New(ctx, worldCfg, store, world, itemTypes, monsterTypes)
	if err != nil {
		return ember.WithStack(err)
	}
	if err := g.RestoreSpawns(); err != nil {
		return ember.WithStack(err)
	}

	log.Printf("World loaded from %q, console ready", s.cfg.Dir)
	return s.console(ctx, g, os.Stdin, os.Stdout)
}

// console runs the admin command loop until EOF or quit.
func (s *Server) console(ctx context.Context, g *game.Game, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ember.WithStack(ctx.Err())
		}
		words, err := shellwords.SplitPosix(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "quit", "exit":
			return nil
		case "stats":
			if len(words) > 1 && words[1] == "scripts" {
				g.Stats().RenderScripts(out)
			} else if len(words) > 1 && words[1] == "spawns" {
				g.Stats().RenderSpawns(out)
			} else {
				g.Stats().RenderSummary(out)
			}
		case "spawn":
			if err := s.spawnCommand(g, words[1:]); err != nil {
				fmt.Fprintln(out, err)
			}
		case "load":
			if err := s.loadCommand(g, words[1:]); err != nil {
				fmt.Fprintln(out, err)
			}
		default:
			fmt.Fprintf(out, "unknown command %q; try stats, spawn, load, quit\n", words[0])
		}
	}
	return ember.WithStack(scanner.Err())
}

// spawnCommand registers a spawn point: spawn TYPE X Y Z INTERVAL_MS.
func (s *Server) spawnCommand(g *game.Game, args []string) error {
	if len(args) != 5 {
		return errors.New("usage: spawn TYPE X Y Z INTERVAL_MS")
	}
	nums := make([]uint64, 4)
	for i, arg := range args[1:] {
		var err error
		if nums[i], err = strconv.ParseUint(arg, 10, 32); err != nil {
			return ember.WithStack(err)
		}
	}
	return g.SetSpawnPosition(args[0], structs.Position{
		X: uint16(nums[0]),
		Y: uint16(nums[1]),
		Z: uint8(nums[2]),
	}, uint32(nums[3]))
}

// loadCommand stores a script file: load /monsters/rat.js rat.js. Any
// cached copy of the old source is dropped.
func (s *Server) loadCommand(g *game.Game, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: load SCRIPT_PATH LOCAL_FILE")
	}
	b, err := os.ReadFile(args[1])
	if err != nil {
		return ember.WithStack(err)
	}
	if err := g.StoreSource(args[0], b); err != nil {
		return ember.WithStack(err)
	}
	return nil
}
