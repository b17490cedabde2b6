package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/application/usecase/membership"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/notification"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/internal/testutil/memory"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var owner = &user.User{ID: 7, Username: "prof", Email: "prof@mit.edu"}

type fixture struct {
	uc     *NotifyUseCase
	dir    *memory.Directory
	mailer *memory.Mailer
	video  *video.Video
}

func newFixture(t *testing.T, adminLists ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	files := memory.NewFiles()
	videos := memory.NewVideos(files)
	collections := memory.NewCollections()

	c := collection.New(owner.ID, "18.06 Linear Algebra", "mit-1806")
	c.AdminLists = adminLists
	require.NoError(t, collections.Save(ctx, c))
	v := video.New(c.Key, "Lecture 1", "")
	require.NoError(t, videos.Save(ctx, v))

	f := &fixture{dir: memory.NewDirectory(), mailer: &memory.Mailer{}, video: v}
	resolver := membership.NewResolver(f.dir, memory.NewMembershipCache(), "mit.edu", logger.NewNop())
	f.uc = NewNotifyUseCase(videos, collections, memory.NewUsers(owner), memory.NewTemplates(), f.dir, resolver, f.mailer,
		Settings{BaseURL: "https://video.test", StaticURL: "https://static.test", SupportEmail: "help@video.test", MailDomain: "mit.edu"},
		logger.NewNop())
	return f
}

func TestTypeFor(t *testing.T) {
	cases := map[video.VideoStatus]notification.Type{
		video.StatusComplete:                notification.TypeSuccess,
		video.StatusTranscodeFailedVideo:    notification.TypeInvalidInput,
		video.StatusTranscodeFailedInternal: notification.TypeOtherError,
		video.StatusUploadFailed:            notification.TypeOtherError,
		video.StatusRetranscodeFailed:       notification.TypeOtherError,
		video.StatusError:                   notification.TypeOtherError,
	}
	for status, want := range cases {
		assert.Equal(t, want, TypeFor(status), status)
	}
}

func TestNotify_MailListsAndOwner(t *testing.T) {
	f := newFixture(t, "1806-staff", "1806-tas")
	f.dir.Attributes["1806-staff"] = &service.ListAttributes{Name: "1806-staff", MailList: true}
	f.dir.Attributes["1806-tas"] = &service.ListAttributes{Name: "1806-tas", MailList: false}
	f.dir.Members["1806-staff"] = []string{"someone-else"}

	require.NoError(t, f.uc.Notify(context.Background(), f.video.Key, video.StatusComplete))

	require.Len(t, f.mailer.Sent, 1)
	msg := f.mailer.Sent[0]
	assert.Equal(t, []string{"1806-staff@mit.edu", "prof@mit.edu"}, msg.To)
	assert.Equal(t, `Your video "Lecture 1" is ready`, msg.Subject)
	assert.Contains(t, msg.Body, "https://video.test/videos/"+f.video.Key.String()+"/")
	assert.Contains(t, msg.Body, `"18.06 Linear Algebra"`)
	assert.Contains(t, msg.Body, "help@video.test")
}

func TestNotify_OwnerOnMailListIsNotAddedTwice(t *testing.T) {
	f := newFixture(t, "1806-staff")
	f.dir.Attributes["1806-staff"] = &service.ListAttributes{Name: "1806-staff", MailList: true}
	f.dir.Members["1806-staff"] = []string{"prof"}

	require.NoError(t, f.uc.Notify(context.Background(), f.video.Key, video.StatusComplete))

	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, []string{"1806-staff@mit.edu"}, f.mailer.Sent[0].To)
}

func TestNotify_DirectoryDownStillMailsOwner(t *testing.T) {
	f := newFixture(t, "1806-staff")
	f.dir.Err = apperror.NewDirectoryUnavailable("down", nil)

	require.NoError(t, f.uc.Notify(context.Background(), f.video.Key, video.StatusTranscodeFailedVideo))

	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, []string{"prof@mit.edu"}, f.mailer.Sent[0].To)
	assert.Contains(t, f.mailer.Sent[0].Subject, "could not be processed")
}

func TestNotify_DebugCopyOnInternalFailures(t *testing.T) {
	for _, status := range []video.VideoStatus{video.StatusTranscodeFailedInternal, video.StatusUploadFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.uc.Notify(context.Background(), f.video.Key, status))

			require.Len(t, f.mailer.Sent, 2)
			debug := f.mailer.Sent[1]
			assert.Equal(t, []string{"help@video.test"}, debug.To)
			assert.True(t, strings.HasPrefix(debug.Subject, "DEBUG: "))
			assert.Contains(t, debug.Body, "Recipients: prof@mit.edu")
			assert.Contains(t, debug.Body, f.mailer.Sent[0].Body)
		})
	}
}

func TestNotify_StoredTemplateWins(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.uc.templateRepo.Upsert(context.Background(), &notification.Template{
		Type:    notification.TypeSuccess,
		Subject: "Done: {{.video_title}}",
		Body:    "{{.collection_url}} {{.static_url}}",
	}))

	require.NoError(t, f.uc.Notify(context.Background(), f.video.Key, video.StatusComplete))

	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, "Done: Lecture 1", f.mailer.Sent[0].Subject)
	assert.True(t, strings.HasSuffix(f.mailer.Sent[0].Body, " https://static.test"))
}

func TestNotify_SendFailureIsNotificationError(t *testing.T) {
	f := newFixture(t)
	f.mailer.Err = errors.New("smtp down")

	err := f.uc.Notify(context.Background(), f.video.Key, video.StatusComplete)
	assert.ErrorIs(t, err, apperror.ErrNotificationSend)
	assert.False(t, apperror.IsRetriable(err))
}

func TestNotify_MissingVideoIsSkipped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.uc.Notify(context.Background(), uuid.New(), video.StatusComplete))
	assert.Empty(t, f.mailer.Sent)
}
