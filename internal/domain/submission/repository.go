package submission

import "context"

type Repository interface {
	// Create сохраняет отправку. Если у пользователя уже есть отправка с тем же
	// ключом идемпотентности, возвращает ее и created=false.
	Create(ctx context.Context, s Submission) (saved Submission, created bool, err error)
}
