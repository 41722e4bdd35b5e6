package inspect

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/conversations"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	// Import store plugins so every descriptor kind can be opened.
	_ "github.com/bourracho/chat-registry/internal/plugin/store/file"
	_ "github.com/bourracho/chat-registry/internal/plugin/store/mongo"
)

// Command returns the inspect sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the conversations and users of a registry without modifying it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "persistence-dir",
				Sources: cli.EnvVars("BOURRACHO_PERSISTENCE_DIR", "PERSISTENCE_DIR"),
				Usage:   "Root directory of registry indexes",
				Value:   "./persistence",
			},
			&cli.StringFlag{
				Name:    "registry-id",
				Sources: cli.EnvVars("BOURRACHO_REGISTRY_ID"),
				Usage:   "Registry to inspect",
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "mongo-username",
				Sources: cli.EnvVars("BOURRACHO_MONGO_USERNAME", "MONGO_DB_USERNAME"),
				Usage:   "MongoDB username for document_db conversations",
			},
			&cli.StringFlag{
				Name:    "mongo-password",
				Sources: cli.EnvVars("BOURRACHO_MONGO_PASSWORD", "MONGO_DB_PASSWORD"),
				Usage:   "MongoDB password",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.PersistenceDir = cmd.String("persistence-dir")
			cfg.RegistryID = cmd.String("registry-id")
			cfg.MongoUsername = cmd.String("mongo-username")
			cfg.MongoPassword = cmd.String("mongo-password")
			ctx = config.WithContext(ctx, &cfg)
			return Run(ctx, &cfg, cmd.Root().Writer)
		},
	}
}

// Run prints a summary of the registry selected by cfg to w.
func Run(ctx context.Context, cfg *config.Config, w io.Writer) error {
	path := filepath.Join(cfg.RegistryDir(), conversations.IndexFileName)
	idx, found, err := conversations.ReadIndex(path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no registry index at %s", path)
	}

	fmt.Fprintf(w, "Registry %s (%s)\n\n", idx.ID, path)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tSTORE\tNAME\tMEMBERS\tMESSAGES")
	ids := make([]string, 0, len(idx.Descriptors))
	for id := range idx.Descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		row, err := summarize(ctx, idx.Descriptors[id])
		if err != nil {
			log.Warn("Failed to read conversation", "conversationId", id, "err", err)
			fmt.Fprintf(tw, "%s\t%s\t?\t?\t?\n", id, idx.Descriptors[id].Type)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", id, idx.Descriptors[id].Type, row.name, row.members, row.messages)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tDISPLAY NAME\tADMIN")
	userIDs := make([]string, 0, len(idx.Users))
	for id := range idx.Users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		u := idx.Users[id]
		fmt.Fprintf(tw, "%s\t%s\t%t\n", u.ID, u.DisplayName, u.IsAdmin)
	}
	return tw.Flush()
}

type summary struct {
	name     string
	members  int
	messages int
}

func summarize(ctx context.Context, d registrystore.Descriptor) (summary, error) {
	s, err := registrystore.Open(registrystore.WithReadOnly(ctx), d)
	if err != nil {
		return summary{}, err
	}
	defer func() { _ = s.Close(ctx) }()

	md, err := s.GetMetadata(ctx)
	if err != nil {
		return summary{}, err
	}
	members, err := s.GetUsersIDs(ctx)
	if err != nil {
		return summary{}, err
	}
	msgs, err := s.GetMessages(ctx)
	if err != nil {
		return summary{}, err
	}
	return summary{name: md.Name, members: len(members), messages: len(msgs)}, nil
}
